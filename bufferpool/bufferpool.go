// Package bufferpool owns the frame array, the page table, the free-frame
// list, and mediates all page acquisitions for higher layers: fetch, new,
// unpin, flush and delete, invoking a DiskManager for I/O and a Replacer
// for victim selection.
package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"

	ps "github.com/tidaldb/pagestore"
	"github.com/tidaldb/pagestore/diskmanager"
	"github.com/tidaldb/pagestore/replacer"
)

// BufferPool is the storage core's most complex component. A single
// pool-wide mutex (the "pool latch") serializes every public operation's
// state-mutating region; it is always acquired before the Replacer's own
// mutex (lock order: pool → replacer). Disk I/O on the eviction and fetch
// paths happens while the latch is held — this serializes all I/O through
// the pool but eliminates races between threads materializing the same
// page into different frames, a deliberate trade-off this core makes.
type BufferPool struct {
	mu sync.Mutex

	frames    []*ps.Page // fixed-size, index = FrameID, never reallocated
	pageTable map[ps.PageID]replacer.FrameID
	freeList  []replacer.FrameID // frame ids holding no valid page, taken from the front
	replacer  replacer.Replacer
	disk      *diskmanager.DiskManager

	log *slog.Logger

	hits, misses, evictions int
}

// New constructs a pool of poolSize frames backed by disk and rep.
// poolSize must be at least 1.
func New(poolSize int, disk *diskmanager.DiskManager, rep replacer.Replacer, logger *slog.Logger) (*BufferPool, error) {
	if poolSize < 1 {
		return nil, fmt.Errorf("pagestore: bufferpool: pool size must be >= 1, got %d", poolSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	frames := make([]*ps.Page, poolSize)
	freeList := make([]replacer.FrameID, poolSize)
	for i := range frames {
		frames[i] = newFrame()
		freeList[i] = replacer.FrameID(i)
	}

	return &BufferPool{
		frames:    frames,
		pageTable: make(map[ps.PageID]replacer.FrameID, poolSize),
		freeList:  freeList,
		replacer:  rep,
		disk:      disk,
		log:       logger,
	}, nil
}

func newFrame() *ps.Page {
	return &ps.Page{ID: ps.InvalidPageID, Data: make([]byte, ps.PageSize)}
}

// FetchPage returns a pinned handle to id, reading it from disk on a miss.
// It returns (nil, nil) when the pool is exhausted (all frames pinned). A
// miss against an unopened file or a past-EOF page surfaces as
// ErrInvalidPageID; any other Disk Manager I/O error propagates unchanged.
func (bp *BufferPool) FetchPage(id ps.PageID) (*ps.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable[id]; ok {
		page := bp.frames[frameID]
		page.PinCount++
		bp.replacer.Pin(frameID)
		bp.hits++
		return page, nil
	}
	bp.misses++

	frameID, ok, err := bp.findVictimFrame()
	if err != nil {
		return nil, err
	}
	if !ok {
		bp.log.Debug("pool exhausted on fetch", "page", id)
		return nil, nil
	}

	page := bp.frames[frameID]
	if err := bp.resetFrame(frameID, id); err != nil {
		return nil, err
	}

	if err := bp.disk.ReadPage(id.File, id.No, page.Data, ps.PageSize); err != nil {
		// Roll back: the frame never held a valid page, so it goes back to
		// the free list rather than being left dangling in no structure.
		zeroFrame(page, ps.InvalidPageID)
		bp.freeList = append(bp.freeList, frameID)
		return nil, translateFetchErr(err)
	}

	page.PinCount = 1
	page.Dirty = false
	bp.pageTable[id] = frameID
	bp.replacer.Pin(frameID)
	return page, nil
}

// NewPage allocates a fresh page in fileID and returns a pinned handle to
// it. It returns (zero, nil, nil) when the pool is exhausted. The page is
// not written to disk by NewPage; it becomes durable on eviction or an
// explicit Flush call.
func (bp *BufferPool) NewPage(fileID ps.FileID) (ps.PageID, *ps.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok, err := bp.findVictimFrame()
	if err != nil {
		return ps.PageID{}, nil, err
	}
	if !ok {
		bp.log.Debug("pool exhausted on new page", "file", fileID)
		return ps.PageID{}, nil, nil
	}

	pageNo, err := bp.disk.AllocatePage(fileID)
	if err != nil {
		// Roll back: the frame never held a valid page under its new
		// identity, so it goes back to the free list clean rather than
		// carrying the evicted occupant's stale PageID.
		zeroFrame(bp.frames[frameID], ps.InvalidPageID)
		bp.freeList = append(bp.freeList, frameID)
		return ps.PageID{}, nil, err
	}
	id := ps.PageID{File: fileID, No: pageNo}

	page := bp.frames[frameID]
	if err := bp.resetFrame(frameID, id); err != nil {
		return ps.PageID{}, nil, err
	}

	page.PinCount = 1
	page.Dirty = false
	bp.pageTable[id] = frameID
	bp.replacer.Pin(frameID)
	return id, page, nil
}

// UnpinPage decrements id's pin count. ok is false, with a nil error, if id
// is not resident (idempotent, not an error). A caller that unpins a page
// whose pin count is already zero gets ok=false and a non-nil
// ErrUnpinUnderflow error: that is a programmer bug, not a normal outcome.
func (bp *BufferPool) UnpinPage(id ps.PageID, isDirty bool) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return false, nil
	}
	page := bp.frames[frameID]

	if page.PinCount == 0 {
		return false, &ps.Error{Kind: ps.ErrUnpinUnderflow, Op: "UnpinPage"}
	}

	if isDirty {
		page.Dirty = true
	}
	page.PinCount--
	if page.PinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return true, nil
}

// FlushPage writes id's current contents to disk unconditionally and clears
// its dirty flag, regardless of pin count. It returns false if id is not
// resident.
func (bp *BufferPool) FlushPage(id ps.PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return false, nil
	}
	page := bp.frames[frameID]

	if err := bp.disk.WritePage(id.File, id.No, page.Data, ps.PageSize); err != nil {
		return false, err
	}
	page.Dirty = false
	return true, nil
}

// FlushAllPages writes every resident page belonging to fileID to disk.
func (bp *BufferPool) FlushAllPages(fileID ps.FileID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id, frameID := range bp.pageTable {
		if id.File != fileID {
			continue
		}
		page := bp.frames[frameID]
		if err := bp.disk.WritePage(id.File, id.No, page.Data, ps.PageSize); err != nil {
			return err
		}
		page.Dirty = false
	}
	return nil
}

// DeletePage removes id from the buffer pool and frees its page number for
// reuse. It returns true with no error if id was not resident. It returns
// false if id is resident and still pinned: the caller must unpin first.
func (bp *BufferPool) DeletePage(id ps.PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return true, nil
	}
	page := bp.frames[frameID]
	if page.PinCount > 0 {
		return false, nil
	}

	delete(bp.pageTable, id)
	bp.replacer.Pin(frameID) // no-op if untracked; guarantees it leaves LRU state
	zeroFrame(page, ps.InvalidPageID)
	bp.freeList = append(bp.freeList, frameID)

	if err := bp.disk.DeallocatePage(id.File, id.No); err != nil {
		return true, err
	}
	return true, nil
}

// findVictimFrame prefers the free list front; if empty, it asks the
// Replacer for a victim. Free frames are preferred because they carry no
// write-back cost.
func (bp *BufferPool) findVictimFrame() (replacer.FrameID, bool, error) {
	if len(bp.freeList) > 0 {
		frameID := bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		return frameID, true, nil
	}

	frameID, ok := bp.replacer.Victim()
	if !ok {
		return 0, false, nil
	}

	page := bp.frames[frameID]
	if page.Dirty {
		if err := bp.disk.WritePage(page.ID.File, page.ID.No, page.Data, ps.PageSize); err != nil {
			// Per spec §9: the frame remains dirty and resident, the error
			// propagates, and no page-table mutation occurs. Hand the
			// frame back to the replacer so it is still a candidate later.
			bp.log.Warn("write-back failed during eviction", "page", page.ID, "err", err)
			bp.replacer.Unpin(frameID)
			return 0, false, err
		}
		page.Dirty = false
	}
	delete(bp.pageTable, page.ID)
	bp.evictions++
	return frameID, true, nil
}

// resetFrame transitions frameID from its old occupant (already evicted of
// dirty data by findVictimFrame) to newID: zero the buffer and install the
// new identity. The caller sets PinCount afterward.
func (bp *BufferPool) resetFrame(frameID replacer.FrameID, newID ps.PageID) error {
	page := bp.frames[frameID]
	zeroFrame(page, newID)
	return nil
}

// translateFetchErr maps the Disk Manager errors that mean "id does not
// name a real page" onto ErrInvalidPageID, the contract FetchPage documents:
// an unopened file (ErrFileNotOpen) or a read past end-of-file
// (ErrShortRead). Any other error (e.g. a genuine ErrIO) propagates as-is.
func translateFetchErr(err error) error {
	switch kind, ok := ps.KindOf(err); {
	case ok && (kind == ps.ErrFileNotOpen || kind == ps.ErrShortRead):
		return &ps.Error{Kind: ps.ErrInvalidPageID, Op: "FetchPage", Err: err}
	default:
		return err
	}
}

// zeroFrame clears a frame's buffer in place and installs id as its
// identity, without reallocating the backing array.
func zeroFrame(page *ps.Page, id ps.PageID) {
	page.ID = id
	for i := range page.Data {
		page.Data[i] = 0
	}
	page.Dirty = false
	page.PinCount = 0
}
