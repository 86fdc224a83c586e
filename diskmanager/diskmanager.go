// Package diskmanager provides file- and page-level I/O primitives: create,
// open, close and destroy files; read and write fixed-size pages by
// (file_id, page_no); and allocate page numbers per file, reusing numbers
// freed by DeallocatePage before minting new ones from a per-file counter.
// It is the lowest of the three storage-core components.
package diskmanager

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	ps "github.com/tidaldb/pagestore"
)

// openFile tracks one currently-open file and its allocation state.
type openFile struct {
	file *os.File
	path string

	mu         sync.Mutex // guards nextPageNo and freeList; allocation is atomic per file
	nextPageNo ps.PageNo
	freeList   *FreeList
}

// DiskManager mediates all physical I/O for the files it has open. Its
// methods are not internally serialized against each other across distinct
// files: the Buffer Pool is responsible for serializing per-page access via
// its own latch. allocate_page is atomic per file via each openFile's mutex.
type DiskManager struct {
	mu         sync.Mutex // guards the open-file table only
	byPath     map[string]ps.FileID
	byID       map[ps.FileID]*openFile
	nextFileID ps.FileID

	log *slog.Logger
}

// New creates a DiskManager with no files open. logger may be nil, in which
// case slog.Default() is used for the rare diagnostic this package emits.
func New(logger *slog.Logger) *DiskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskManager{
		byPath: make(map[string]ps.FileID),
		byID:   make(map[ps.FileID]*openFile),
		log:    logger,
	}
}

// CreateFile creates a new, empty file at path.
func (dm *DiskManager) CreateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &ps.Error{Kind: ps.ErrFileExists, Op: "CreateFile", Path: path}
	} else if !os.IsNotExist(err) {
		return &ps.Error{Kind: ps.ErrIO, Op: "CreateFile", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return &ps.Error{Kind: ps.ErrFileExists, Op: "CreateFile", Path: path, Err: err}
		}
		return &ps.Error{Kind: ps.ErrIO, Op: "CreateFile", Path: path, Err: err}
	}
	return f.Close()
}

// DestroyFile removes path from disk. Fails if the file is currently open.
func (dm *DiskManager) DestroyFile(path string) error {
	dm.mu.Lock()
	if _, open := dm.byPath[path]; open {
		dm.mu.Unlock()
		return &ps.Error{Kind: ps.ErrFileStillOpen, Op: "DestroyFile", Path: path}
	}
	dm.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &ps.Error{Kind: ps.ErrFileNotFound, Op: "DestroyFile", Path: path}
		}
		return &ps.Error{Kind: ps.ErrIO, Op: "DestroyFile", Path: path, Err: err}
	}

	if err := os.Remove(path); err != nil {
		return &ps.Error{Kind: ps.ErrIO, Op: "DestroyFile", Path: path, Err: err}
	}
	return nil
}

// OpenFile opens path for read/write, returning its FileID. Idempotent: a
// path that is already open returns the same FileID it was assigned before.
func (dm *DiskManager) OpenFile(path string) (ps.FileID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id, ok := dm.byPath[path]; ok {
		return id, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return 0, &ps.Error{Kind: ps.ErrFileNotFound, Op: "OpenFile", Path: path}
		}
		return 0, &ps.Error{Kind: ps.ErrIO, Op: "OpenFile", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return 0, &ps.Error{Kind: ps.ErrIO, Op: "OpenFile", Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, &ps.Error{Kind: ps.ErrIO, Op: "OpenFile", Path: path, Err: err}
	}

	nextPageNo := ps.PageNo(info.Size() / ps.PageSize)
	if info.Size()%ps.PageSize != 0 {
		nextPageNo++
	}

	dm.nextFileID++
	id := dm.nextFileID
	dm.byID[id] = &openFile{
		file:       f,
		path:       path,
		nextPageNo: nextPageNo,
		freeList:   NewFreeList(),
	}
	dm.byPath[path] = id
	return id, nil
}

// CloseFile closes the handle associated with id.
func (dm *DiskManager) CloseFile(id ps.FileID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	of, ok := dm.byID[id]
	if !ok {
		return &ps.Error{Kind: ps.ErrFileNotOpen, Op: "CloseFile"}
	}

	delete(dm.byID, id)
	delete(dm.byPath, of.path)

	if err := of.file.Close(); err != nil {
		return &ps.Error{Kind: ps.ErrIO, Op: "CloseFile", Path: of.path, Err: err}
	}
	return nil
}

// IsFile is a pure filesystem probe; it does not require the file to be open.
func (dm *DiskManager) IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (dm *DiskManager) lookup(id ps.FileID) (*openFile, error) {
	dm.mu.Lock()
	of, ok := dm.byID[id]
	dm.mu.Unlock()
	if !ok {
		return nil, &ps.Error{Kind: ps.ErrFileNotOpen, Op: "lookup"}
	}
	return of, nil
}

// ReadPage reads exactly nbytes at offset page_no*PageSize into buffer.
// Reads that fall past end-of-file are a ShortRead.
func (dm *DiskManager) ReadPage(id ps.FileID, pageNo ps.PageNo, buffer []byte, nbytes int) error {
	of, err := dm.lookup(id)
	if err != nil {
		return err
	}

	offset := int64(pageNo) * ps.PageSize
	n, err := of.file.ReadAt(buffer[:nbytes], offset)
	if err != nil && n < nbytes {
		return &ps.Error{Kind: ps.ErrShortRead, Op: "ReadPage", Path: of.path, Err: err}
	}
	if n < nbytes {
		return &ps.Error{Kind: ps.ErrShortRead, Op: "ReadPage", Path: of.path}
	}
	return nil
}

// WritePage writes exactly nbytes at the page offset, extending the file if
// necessary so file length stays a multiple of PageSize.
func (dm *DiskManager) WritePage(id ps.FileID, pageNo ps.PageNo, buffer []byte, nbytes int) error {
	of, err := dm.lookup(id)
	if err != nil {
		return err
	}

	offset := int64(pageNo) * ps.PageSize
	n, err := of.file.WriteAt(buffer[:nbytes], offset)
	if err != nil {
		return &ps.Error{Kind: ps.ErrIO, Op: "WritePage", Path: of.path, Err: err}
	}
	if n < nbytes {
		return &ps.Error{Kind: ps.ErrShortWrite, Op: "WritePage", Path: of.path}
	}
	return nil
}

// AllocatePage returns the next unused page number for id and advances the
// per-file counter. A page freed by DeallocatePage is reused before a fresh
// number is minted (see FreeList).
func (dm *DiskManager) AllocatePage(id ps.FileID) (ps.PageNo, error) {
	of, err := dm.lookup(id)
	if err != nil {
		return 0, err
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	if pageNo, ok := of.freeList.pop(dm, of); ok {
		dm.log.Debug("reclaimed free page", "file", id, "page", pageNo)
		return pageNo, nil
	}

	pageNo := of.nextPageNo
	of.nextPageNo++
	return pageNo, nil
}

// DeallocatePage marks pageNo free for reuse within id. It never reclaims
// the underlying disk space; it only makes the page number eligible for a
// future AllocatePage.
func (dm *DiskManager) DeallocatePage(id ps.FileID, pageNo ps.PageNo) error {
	of, err := dm.lookup(id)
	if err != nil {
		return err
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	if pageNo >= of.nextPageNo {
		return &ps.Error{Kind: ps.ErrInvalidPageID, Op: "DeallocatePage", Path: of.path,
			Err: fmt.Errorf("page %d was never allocated (next is %d)", pageNo, of.nextPageNo)}
	}
	return of.freeList.push(dm, of, pageNo)
}

// GetFileSize returns the current size, in bytes, of an open or closed file.
func (dm *DiskManager) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &ps.Error{Kind: ps.ErrFileNotFound, Op: "GetFileSize", Path: path}
		}
		return 0, &ps.Error{Kind: ps.ErrIO, Op: "GetFileSize", Path: path, Err: err}
	}
	return info.Size(), nil
}

// GetFileName returns the path a FileID was opened from.
func (dm *DiskManager) GetFileName(id ps.FileID) (string, error) {
	of, err := dm.lookup(id)
	if err != nil {
		return "", err
	}
	return of.path, nil
}

// Sync flushes id's file to stable storage.
func (dm *DiskManager) Sync(id ps.FileID) error {
	of, err := dm.lookup(id)
	if err != nil {
		return err
	}
	if err := of.file.Sync(); err != nil {
		return &ps.Error{Kind: ps.ErrIO, Op: "Sync", Path: of.path, Err: err}
	}
	return nil
}
