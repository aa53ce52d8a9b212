package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tuannm99/novastore/internal/bufferpool"
	locking "github.com/tuannm99/novastore/internal/lock"
	"github.com/tuannm99/novastore/internal/storage"
)

// RecordManager creates, opens and closes heap files. Open handles are
// shared: opening a file twice returns the same *FileHandle with its
// reference count bumped.
type RecordManager struct {
	dm *storage.DiskManager
	bp *bufferpool.BufferPool

	mu   sync.Mutex
	open map[string]*FileHandle
}

func NewRecordManager(dm *storage.DiskManager, bp *bufferpool.BufferPool) *RecordManager {
	return &RecordManager{
		dm:   dm,
		bp:   bp,
		open: make(map[string]*FileHandle),
	}
}

// CreateFile creates a heap file for records of recordSize bytes. Only
// the header page is written; data pages are allocated on demand.
func (rm *RecordManager) CreateFile(name string, recordSize int) error {
	hdr, err := NewFileHeader(rm.dm.PageSize(), recordSize)
	if err != nil {
		return err
	}
	if err := rm.dm.CreateFile(name); err != nil {
		return err
	}
	if _, err := rm.dm.AllocatePage(name); err != nil {
		return err
	}
	if err := rm.writeHeader(name, hdr); err != nil {
		return err
	}
	slog.Debug("heap: file created", "file", name,
		"record_size", hdr.RecordSize, "records_per_page", hdr.RecordsPerPage)
	return nil
}

// OpenFile returns the (possibly shared) handle of name.
func (rm *RecordManager) OpenFile(name string) (*FileHandle, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if fh, ok := rm.open[name]; ok {
		fh.refs.Inc()
		return fh, nil
	}

	buf := make([]byte, rm.dm.PageSize())
	if err := rm.dm.ReadPage(name, 0, buf); err != nil {
		return nil, err
	}
	hdr, err := DecodeFileHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	// The disk manager is the authority on allocated pages.
	if n, err := rm.dm.PageCount(name); err == nil && n != hdr.NumPages {
		slog.Warn("heap: header page count differs from disk", "file", name,
			"header", hdr.NumPages, "disk", n)
		hdr.NumPages = n
	}

	fh := &FileHandle{
		name: name,
		rm:   rm,
		view: rm.bp.View(name),
		hdr:  hdr,
		refs: locking.NewRefCount(),
	}
	rm.open[name] = fh
	return fh, nil
}

// CloseFile drops one reference to fh. The last reference flushes the
// file's pages and header and releases its frames.
func (rm *RecordManager) CloseFile(fh *FileHandle) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	last, err := fh.refs.Dec()
	if err != nil {
		return fmt.Errorf("heap: close %s: %w", fh.name, err)
	}
	if !last {
		return nil
	}
	delete(rm.open, fh.name)

	if err := fh.flush(); err != nil {
		return err
	}
	if err := rm.bp.DropFile(fh.name); err != nil {
		return err
	}
	return rm.dm.CloseFile(fh.name)
}

// DestroyFile deletes a closed heap file. Its cached pages are discarded
// without being written.
func (rm *RecordManager) DestroyFile(name string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.open[name]; ok {
		return fmt.Errorf("%w: %s", ErrFileOpen, name)
	}
	if err := rm.bp.DiscardFile(name); err != nil {
		return err
	}
	return rm.dm.DestroyFile(name)
}

// OpenFiles lists the names of open heap files, sorted.
func (rm *RecordManager) OpenFiles() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, 0, len(rm.open))
	for name := range rm.open {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CloseAll closes every open handle regardless of its reference count.
func (rm *RecordManager) CloseAll() error {
	rm.mu.Lock()
	handles := make([]*FileHandle, 0, len(rm.open))
	for _, fh := range rm.open {
		handles = append(handles, fh)
	}
	rm.mu.Unlock()

	var errs []error
	for _, fh := range handles {
		for fh.refs.Get() > 0 {
			if err := rm.CloseFile(fh); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (rm *RecordManager) writeHeader(name string, hdr FileHeader) error {
	buf := make([]byte, rm.dm.PageSize())
	hdr.encode(buf)
	return rm.dm.WritePage(name, 0, buf)
}
