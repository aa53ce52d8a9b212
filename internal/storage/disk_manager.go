package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tuannm99/novastore/internal/alias/util"
)

// FileMeta is the persisted allocation record of one paged file.
type FileMeta struct {
	PageCount uint32 `json:"page_count"`
}

type diskMeta struct {
	Version  int                 `json:"version"`
	PageSize int                 `json:"page_size"`
	Files    map[string]FileMeta `json:"files"`
}

// DiskManager maps (file, pageNum) -> byte offset pageNum*PageSize inside
// <root>/<file>. File names are relative paths such as "users/data".
//
// Allocation metadata lives in <root>/disk_meta.json: it is loaded by Open
// and rewritten by Close so page numbering survives a restart.
type DiskManager struct {
	root     string
	pageSize int

	mu     sync.Mutex
	meta   map[string]*FileMeta
	fds    map[string]*os.File
	lock   *os.File
	closed bool
}

// Open loads (or initializes) the disk metadata under root and takes the
// directory lock.
func Open(root string, pageSize int) (*DiskManager, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < MinPageSize {
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, pageSize)
	}
	if err := os.MkdirAll(root, FileMode0755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", root, err)
	}

	lock, err := lockDir(filepath.Join(root, lockFileName))
	if err != nil {
		return nil, err
	}

	dm := &DiskManager{
		root:     root,
		pageSize: pageSize,
		meta:     make(map[string]*FileMeta),
		fds:      make(map[string]*os.File),
		lock:     lock,
	}
	if err := dm.loadMeta(); err != nil {
		_ = unlockDir(lock)
		return nil, err
	}
	return dm, nil
}

func (dm *DiskManager) Root() string  { return dm.root }
func (dm *DiskManager) PageSize() int { return dm.pageSize }

func (dm *DiskManager) metaPath() string {
	return filepath.Join(dm.root, metaFileName)
}

func (dm *DiskManager) path(name string) string {
	return filepath.Join(dm.root, filepath.FromSlash(name))
}

func (dm *DiskManager) loadMeta() error {
	data, err := os.ReadFile(dm.metaPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: read metadata: %w", err)
	}

	var m diskMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("storage: decode metadata: %w", err)
	}
	if m.PageSize != 0 && m.PageSize != dm.pageSize {
		return fmt.Errorf("%w: data dir uses %d, configured %d", ErrBadPageSize, m.PageSize, dm.pageSize)
	}

	for name, fm := range m.Files {
		count := fm.PageCount

		// Pages allocated after the last clean shutdown are still on disk.
		info, err := os.Stat(dm.path(name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("storage: file listed in metadata is missing", "file", name)
			continue
		case err != nil:
			return fmt.Errorf("storage: stat %s: %w", name, err)
		}
		if onDisk := uint32(info.Size() / int64(dm.pageSize)); onDisk > count {
			slog.Warn("storage: metadata behind file size, trusting file",
				"file", name, "meta_pages", count, "disk_pages", onDisk)
			count = onDisk
		}
		dm.meta[name] = &FileMeta{PageCount: count}
	}
	return nil
}

func (dm *DiskManager) dumpMeta() error {
	m := diskMeta{
		Version:  metaVersion,
		PageSize: dm.pageSize,
		Files:    make(map[string]FileMeta, len(dm.meta)),
	}
	for name, fm := range dm.meta {
		m.Files[name] = *fm
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(dm.metaPath(), data, FileMode0644); err != nil {
		return fmt.Errorf("storage: write metadata: %w", err)
	}
	slog.Debug("storage: metadata saved", "path", dm.metaPath(), "files", len(m.Files))
	return nil
}

// CreateFile creates an empty paged file.
func (dm *DiskManager) CreateFile(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return ErrClosed
	}

	if _, ok := dm.meta[name]; ok {
		return fmt.Errorf("%w: %s", ErrFileExists, name)
	}
	p := dm.path(name)
	if err := os.MkdirAll(filepath.Dir(p), FileMode0755); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", name, err)
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, FileMode0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, name)
		}
		return fmt.Errorf("storage: create %s: %w", name, err)
	}
	dm.fds[name] = f
	dm.meta[name] = &FileMeta{}

	// Record the file now so it is known after an unclean shutdown.
	if err := dm.dumpMeta(); err != nil {
		delete(dm.meta, name)
		delete(dm.fds, name)
		util.CloseFileFunc(f)
		_ = os.Remove(p)
		return err
	}
	return nil
}

func (dm *DiskManager) FileExists(name string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.meta[name]
	return ok
}

// Files lists every known file, sorted.
func (dm *DiskManager) Files() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	out := make([]string, 0, len(dm.meta))
	for name := range dm.meta {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (dm *DiskManager) fdLocked(name string) (*os.File, error) {
	if dm.closed {
		return nil, ErrClosed
	}
	if _, ok := dm.meta[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if f, ok := dm.fds[name]; ok {
		return f, nil
	}
	// RDWR | CREATE (no truncate)
	f, err := os.OpenFile(dm.path(name), os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	dm.fds[name] = f
	return f, nil
}

// CloseFile releases the cached descriptor; the file stays allocated.
func (dm *DiskManager) CloseFile(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, ok := dm.fds[name]
	if !ok {
		return nil
	}
	delete(dm.fds, name)
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", name, err)
	}
	return nil
}

// DestroyFile removes the file from disk and from the metadata.
func (dm *DiskManager) DestroyFile(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return ErrClosed
	}
	if _, ok := dm.meta[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if f, ok := dm.fds[name]; ok {
		util.CloseFileFunc(f)
		delete(dm.fds, name)
	}
	if err := os.Remove(dm.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	delete(dm.meta, name)
	return dm.dumpMeta()
}

func (dm *DiskManager) PageCount(name string) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	fm, ok := dm.meta[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return fm.PageCount, nil
}

// AllocatePage extends name by one zeroed page and returns its number.
// The file is extended on disk right away so an I/O failure surfaces here
// rather than on first flush.
func (dm *DiskManager) AllocatePage(name string) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.fdLocked(name)
	if err != nil {
		return 0, err
	}
	fm := dm.meta[name]
	pageNum := fm.PageCount

	zero := make([]byte, dm.pageSize)
	if _, err := f.WriteAt(zero, dm.offset(pageNum)); err != nil {
		return 0, fmt.Errorf("storage: extend %s to page %d: %w", name, pageNum, err)
	}
	fm.PageCount++

	slog.Debug("storage: page allocated", "file", name, "page", pageNum)
	return pageNum, nil
}

func (dm *DiskManager) offset(pageNum uint32) int64 {
	return int64(pageNum) * int64(dm.pageSize)
}

// ReadPage reads exactly one page into dst. A short read inside an
// allocated page is zero-filled.
func (dm *DiskManager) ReadPage(name string, pageNum uint32, dst []byte) error {
	if len(dst) != dm.pageSize {
		return fmt.Errorf("%w: dst must be exactly %d bytes", ErrBadPageSize, dm.pageSize)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.fdLocked(name)
	if err != nil {
		return err
	}
	if pageNum >= dm.meta[name].PageCount {
		return fmt.Errorf("%w: %s page %d (count %d)", ErrPageOutOfRange, name, pageNum, dm.meta[name].PageCount)
	}

	n, err := f.ReadAt(dst, dm.offset(pageNum))
	if err != nil && err != io.EOF {
		return fmt.Errorf("storage: read %s page %d: %w", name, pageNum, err)
	}
	clear(dst[n:])
	return nil
}

// WritePage writes exactly one page from src.
func (dm *DiskManager) WritePage(name string, pageNum uint32, src []byte) error {
	if len(src) != dm.pageSize {
		return fmt.Errorf("%w: src must be exactly %d bytes", ErrBadPageSize, dm.pageSize)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.fdLocked(name)
	if err != nil {
		return err
	}
	if pageNum >= dm.meta[name].PageCount {
		return fmt.Errorf("%w: %s page %d (count %d)", ErrPageOutOfRange, name, pageNum, dm.meta[name].PageCount)
	}

	n, err := f.WriteAt(src, dm.offset(pageNum))
	if err != nil {
		return fmt.Errorf("storage: write %s page %d: %w", name, pageNum, err)
	}
	if n != dm.pageSize {
		return io.ErrShortWrite
	}
	return nil
}

// Sync fsyncs one file.
func (dm *DiskManager) Sync(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, err := dm.fdLocked(name)
	if err != nil {
		return err
	}
	return f.Sync()
}

// SaveMeta writes the allocation metadata without closing anything.
func (dm *DiskManager) SaveMeta() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return ErrClosed
	}
	return dm.dumpMeta()
}

// Close rewrites the metadata, closes every descriptor and releases the
// directory lock. It is safe to call twice.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	dm.closed = true

	var errs []error
	for name, f := range dm.fds {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("storage: sync %s: %w", name, err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: close %s: %w", name, err))
		}
	}
	dm.fds = nil

	if err := dm.dumpMeta(); err != nil {
		errs = append(errs, err)
	}
	if err := unlockDir(dm.lock); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
