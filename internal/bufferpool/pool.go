package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/novastore/internal/storage"
)

var (
	DefaultCapacity = 128

	ErrNoFreeFrame     = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPagePinned      = errors.New("bufferpool: page is pinned")
	ErrPageNotResident = errors.New("bufferpool: page is not resident")
	ErrPageNotPinned   = errors.New("bufferpool: page is not pinned")
)

// PageTag uniquely identifies a page in the pool.
type PageTag struct {
	File    string
	PageNum uint32
}

func (t PageTag) String() string { return fmt.Sprintf("%s#%d", t.File, t.PageNum) }

// Frame caches exactly one page. Callers only read and write Data, and
// must hand the frame back with UnpinPage.
type Frame struct {
	Tag   PageTag
	Data  []byte
	Dirty bool
	Pin   int32
}

func (f *Frame) PageNum() uint32 { return f.Tag.PageNum }

// Stats are cumulative counters since New.
type Stats struct {
	Capacity  int
	Resident  int
	Pinned    int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// DiskManager is the subset of storage.DiskManager the pool needs.
type DiskManager interface {
	PageSize() int
	AllocatePage(file string) (uint32, error)
	ReadPage(file string, pageNum uint32, dst []byte) error
	WritePage(file string, pageNum uint32, src []byte) error
}

var _ DiskManager = (*storage.DiskManager)(nil)

// BufferPool is a single shared page cache for every file of a database.
type BufferPool struct {
	dm DiskManager

	mu     sync.Mutex
	frames []*Frame        // len == capacity, nil == free slot
	table  map[PageTag]int // (file,pageNum) -> frame index
	repl   Replacer        // tracks frame indices [0..cap)
	stats  Stats
}

func New(dm DiskManager, capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return NewWithReplacer(dm, capacity, NewLRUReplacer(capacity))
}

func NewWithReplacer(dm DiskManager, capacity int, repl Replacer) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BufferPool{
		dm:     dm,
		frames: make([]*Frame, capacity),
		table:  make(map[PageTag]int),
		repl:   repl,
	}
}

func (bp *BufferPool) Capacity() int { return len(bp.frames) }

// FetchPage pins and returns the page (file,pageNum), reading it from disk
// on a miss.
func (bp *BufferPool) FetchPage(file string, pageNum uint32) (*Frame, error) {
	tag := PageTag{File: file, PageNum: pageNum}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	// 1) HIT
	if idx, ok := bp.table[tag]; ok {
		f := bp.frames[idx]
		if f.Pin == 0 {
			if err := bp.repl.Pin(idx); err != nil {
				return nil, err
			}
		}
		f.Pin++
		bp.stats.Hits++
		return f, nil
	}
	bp.stats.Misses++

	idx, f, err := bp.acquireFrameLocked()
	if err != nil {
		return nil, err
	}
	if err := bp.dm.ReadPage(file, pageNum, f.Data); err != nil {
		bp.releaseFrameLocked(idx)
		return nil, err
	}
	bp.installLocked(idx, f, tag)
	return f, nil
}

// NewPage allocates a fresh page at the end of file and returns it pinned
// and zeroed. The frame starts dirty so the page reaches disk even if the
// caller writes nothing.
func (bp *BufferPool) NewPage(file string) (*Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, f, err := bp.acquireFrameLocked()
	if err != nil {
		return nil, err
	}
	pageNum, err := bp.dm.AllocatePage(file)
	if err != nil {
		bp.releaseFrameLocked(idx)
		return nil, err
	}
	clear(f.Data)
	f.Dirty = true
	bp.installLocked(idx, f, PageTag{File: file, PageNum: pageNum})
	return f, nil
}

// acquireFrameLocked returns an unmapped frame: a free slot or a flushed
// victim.
func (bp *BufferPool) acquireFrameLocked() (int, *Frame, error) {
	// 2) Free slot
	for i, f := range bp.frames {
		if f == nil {
			f = &Frame{Data: make([]byte, bp.dm.PageSize())}
			bp.frames[i] = f
			return i, f, nil
		}
	}

	// 3) Evict
	victimIdx, ok := bp.repl.Victim()
	if !ok {
		return -1, nil, fmt.Errorf("%w: capacity %d", ErrNoFreeFrame, len(bp.frames))
	}
	victim := bp.frames[victimIdx]

	if victim.Dirty {
		if err := bp.dm.WritePage(victim.Tag.File, victim.Tag.PageNum, victim.Data); err != nil {
			err = fmt.Errorf("bufferpool: write back %s: %w", victim.Tag, err)
			// The page stays resident and dirty, first in line for eviction.
			if rerr := bp.repl.Restore(victimIdx); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return -1, nil, err
		}
		bp.stats.Flushes++
		victim.Dirty = false
	}

	slog.Debug("bufferpool: evict", "file", victim.Tag.File, "page", victim.Tag.PageNum, "frame", victimIdx)
	bp.stats.Evictions++
	delete(bp.table, victim.Tag)
	victim.Tag = PageTag{}
	return victimIdx, victim, nil
}

// releaseFrameLocked frees a frame handed out by acquireFrameLocked that
// never got mapped.
func (bp *BufferPool) releaseFrameLocked(idx int) {
	bp.frames[idx] = nil
	bp.repl.Remove(idx)
}

func (bp *BufferPool) installLocked(idx int, f *Frame, tag PageTag) {
	f.Tag = tag
	f.Pin = 1
	bp.table[tag] = idx
	// The frame was free or just evicted so the replacer has room for it.
	_ = bp.repl.Pin(idx)
}

// UnpinPage drops one pin. dirty is sticky until the page is written.
func (bp *BufferPool) UnpinPage(file string, pageNum uint32, dirty bool) error {
	tag := PageTag{File: file, PageNum: pageNum}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.table[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotResident, tag)
	}
	f := bp.frames[idx]
	if f.Pin <= 0 {
		return fmt.Errorf("%w: %s", ErrPageNotPinned, tag)
	}

	if dirty {
		f.Dirty = true
	}
	f.Pin--
	if f.Pin == 0 {
		return bp.repl.Unpin(idx)
	}
	return nil
}

// FlushPage writes one resident dirty page back. A page that is not
// resident has nothing to flush.
func (bp *BufferPool) FlushPage(file string, pageNum uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.table[PageTag{File: file, PageNum: pageNum}]
	if !ok {
		return nil
	}
	return bp.flushFrameLocked(bp.frames[idx])
}

func (bp *BufferPool) flushFrameLocked(f *Frame) error {
	if !f.Dirty {
		return nil
	}
	if err := bp.dm.WritePage(f.Tag.File, f.Tag.PageNum, f.Data); err != nil {
		return err
	}
	bp.stats.Flushes++
	f.Dirty = false
	return nil
}

// FlushAllPages flushes dirty pages of file, or of every file when file
// is empty. Pins are left alone.
func (bp *BufferPool) FlushAllPages(file string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, f := range bp.frames {
		if f == nil || (file != "" && f.Tag.File != file) {
			continue
		}
		if err := bp.flushFrameLocked(f); err != nil {
			return err
		}
	}
	return nil
}

// DropFile flushes and forgets every frame of file.
//
// IMPORTANT: call it before destroying the underlying file. If any page
// of the file is pinned, ErrPagePinned is returned and nothing is dropped.
func (bp *BufferPool) DropFile(file string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	// First pass: detect pinned
	for _, f := range bp.frames {
		if f != nil && f.Tag.File == file && f.Pin != 0 {
			return fmt.Errorf("%w: %s", ErrPagePinned, f.Tag)
		}
	}

	// Second pass: flush + remove
	for i, f := range bp.frames {
		if f == nil || f.Tag.File != file {
			continue
		}
		if err := bp.flushFrameLocked(f); err != nil {
			return err
		}
		delete(bp.table, f.Tag)
		bp.releaseFrameLocked(i)
	}
	return nil
}

// DiscardFile forgets every frame of file without writing anything back,
// for files that are about to be destroyed.
func (bp *BufferPool) DiscardFile(file string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, f := range bp.frames {
		if f != nil && f.Tag.File == file && f.Pin != 0 {
			return fmt.Errorf("%w: %s", ErrPagePinned, f.Tag)
		}
	}
	for i, f := range bp.frames {
		if f != nil && f.Tag.File == file {
			delete(bp.table, f.Tag)
			bp.releaseFrameLocked(i)
		}
	}
	return nil
}

func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	s := bp.stats
	s.Capacity = len(bp.frames)
	s.Resident = len(bp.table)
	s.Pinned = bp.repl.PinnedCount()
	return s
}

// UnpinnedCount is the number of resident frames eligible for eviction.
func (bp *BufferPool) UnpinnedCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.repl.UnpinnedCount()
}
