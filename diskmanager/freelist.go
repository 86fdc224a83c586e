package diskmanager

import (
	"encoding/binary"
	"fmt"

	ps "github.com/tidaldb/pagestore"
)

// Free-page reclamation resolves the open question in spec §9: plain
// monotonic allocation never reuses a deallocated page number, so churn
// grows the file without bound. A FreeList chains reserved pages within the
// same file, each holding a run of reclaimed page numbers, adapted from the
// teacher's on-disk free-page-list page type.
const (
	freeListHeaderSize = 8
	maxFreeEntries     = (ps.PageSize - freeListHeaderSize) / 4
)

// FreeList tracks reclaimed page numbers available for reuse within one file.
type FreeList struct {
	Head  ps.PageNo // head of the chain of free-list pages; InvalidPageNo = empty
	Count uint32    // total reclaimed page numbers across the chain
}

// NewFreeList returns an empty free list.
func NewFreeList() *FreeList {
	return &FreeList{Head: ps.InvalidPageNo}
}

type freeListHeader struct {
	next  ps.PageNo
	count uint32
}

func decodeFreeListHeader(buf []byte) freeListHeader {
	return freeListHeader{
		next:  ps.PageNo(binary.LittleEndian.Uint32(buf[0:4])),
		count: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

func (h freeListHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.next))
	binary.LittleEndian.PutUint32(buf[4:8], h.count)
}

func entryOffset(i uint32) int { return freeListHeaderSize + int(i)*4 }

// push adds pageNo to the free list for of, minting a fresh free-list
// carrier page the first time the list transitions from empty to non-empty.
// When the current head page is full, pageNo itself becomes the new (empty)
// head carrier, chained to the old one.
func (fl *FreeList) push(dm *DiskManager, of *openFile, pageNo ps.PageNo) error {
	if fl.Head == ps.InvalidPageNo {
		carrier := of.nextPageNo
		of.nextPageNo++

		buf := make([]byte, ps.PageSize)
		h := freeListHeader{next: ps.InvalidPageNo, count: 1}
		h.encode(buf)
		binary.LittleEndian.PutUint32(buf[entryOffset(0):entryOffset(0)+4], uint32(pageNo))

		if err := dm.writeRaw(of, carrier, buf); err != nil {
			return err
		}
		fl.Head = carrier
		fl.Count = 1
		return nil
	}

	buf, err := dm.readRaw(of, fl.Head)
	if err != nil {
		return err
	}
	h := decodeFreeListHeader(buf)

	if h.count < maxFreeEntries {
		binary.LittleEndian.PutUint32(buf[entryOffset(h.count):entryOffset(h.count)+4], uint32(pageNo))
		h.count++
		h.encode(buf)
		if err := dm.writeRaw(of, fl.Head, buf); err != nil {
			return err
		}
		fl.Count++
		return nil
	}

	// Head page is full: use the page being freed as the new head, chained
	// to the old one.
	newHead := make([]byte, ps.PageSize)
	newH := freeListHeader{next: fl.Head, count: 0}
	newH.encode(newHead)
	if err := dm.writeRaw(of, pageNo, newHead); err != nil {
		return err
	}
	fl.Head = pageNo
	return nil
}

// pop removes and returns a reclaimed page number, if any.
func (fl *FreeList) pop(dm *DiskManager, of *openFile) (ps.PageNo, bool) {
	for fl.Head != ps.InvalidPageNo {
		buf, err := dm.readRaw(of, fl.Head)
		if err != nil {
			return 0, false
		}
		h := decodeFreeListHeader(buf)

		if h.count > 0 {
			h.count--
			off := entryOffset(h.count)
			pageNo := ps.PageNo(binary.LittleEndian.Uint32(buf[off : off+4]))
			h.encode(buf)
			if err := dm.writeRaw(of, fl.Head, buf); err != nil {
				return 0, false
			}
			fl.Count--
			return pageNo, true
		}

		// This free-list carrier page is itself empty: reclaim its own page
		// number and advance to the next carrier in the chain.
		emptyCarrier := fl.Head
		fl.Head = h.next
		return emptyCarrier, true
	}
	return 0, false
}

func (dm *DiskManager) readRaw(of *openFile, pageNo ps.PageNo) ([]byte, error) {
	buf := make([]byte, ps.PageSize)
	offset := int64(pageNo) * ps.PageSize
	n, err := of.file.ReadAt(buf, offset)
	if n < ps.PageSize {
		if err != nil {
			return nil, fmt.Errorf("pagestore: diskmanager: read free-list page %d: %w", pageNo, err)
		}
		return nil, fmt.Errorf("pagestore: diskmanager: short read of free-list page %d", pageNo)
	}
	return buf, nil
}

func (dm *DiskManager) writeRaw(of *openFile, pageNo ps.PageNo, buf []byte) error {
	offset := int64(pageNo) * ps.PageSize
	if _, err := of.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("pagestore: diskmanager: write free-list page %d: %w", pageNo, err)
	}
	return nil
}
