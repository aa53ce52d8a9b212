package bufferpool

import (
	"container/list"
	"fmt"
)

// LRUReplacer evicts the least-recently-unpinned frame.
//
// Pinned frames sit in a set; unpinned frames sit in a list ordered from
// least to most recently unpinned. pinned+unpinned never exceeds capacity.
type LRUReplacer struct {
	capacity int
	pinned   map[int]struct{}
	unpinned *list.List
	elems    map[int]*list.Element
}

var _ Replacer = (*LRUReplacer)(nil)

func NewLRUReplacer(capacity int) *LRUReplacer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRUReplacer{
		capacity: capacity,
		pinned:   make(map[int]struct{}, capacity),
		unpinned: list.New(),
		elems:    make(map[int]*list.Element, capacity),
	}
}

func (r *LRUReplacer) Pin(frameID int) error {
	if _, ok := r.pinned[frameID]; ok {
		return nil
	}
	if e, ok := r.elems[frameID]; ok {
		r.unpinned.Remove(e)
		delete(r.elems, frameID)
		r.pinned[frameID] = struct{}{}
		return nil
	}
	if r.Size() >= r.capacity {
		return fmt.Errorf("%w: capacity %d, frame %d", ErrReplacerFull, r.capacity, frameID)
	}
	r.pinned[frameID] = struct{}{}
	return nil
}

func (r *LRUReplacer) Unpin(frameID int) error {
	if _, ok := r.pinned[frameID]; !ok {
		return fmt.Errorf("%w: frame %d", ErrFrameNotPinned, frameID)
	}
	delete(r.pinned, frameID)
	r.elems[frameID] = r.unpinned.PushBack(frameID)
	return nil
}

func (r *LRUReplacer) Victim() (int, bool) {
	e := r.unpinned.Front()
	if e == nil {
		return -1, false
	}
	id := r.unpinned.Remove(e).(int)
	delete(r.elems, id)
	return id, true
}

func (r *LRUReplacer) Restore(frameID int) error {
	if _, ok := r.pinned[frameID]; ok {
		return fmt.Errorf("bufferpool: restore of pinned frame %d", frameID)
	}
	if _, ok := r.elems[frameID]; ok {
		return fmt.Errorf("bufferpool: restore of tracked frame %d", frameID)
	}
	if r.Size() >= r.capacity {
		return fmt.Errorf("%w: capacity %d, frame %d", ErrReplacerFull, r.capacity, frameID)
	}
	r.elems[frameID] = r.unpinned.PushFront(frameID)
	return nil
}

func (r *LRUReplacer) Remove(frameID int) {
	delete(r.pinned, frameID)
	if e, ok := r.elems[frameID]; ok {
		r.unpinned.Remove(e)
		delete(r.elems, frameID)
	}
}

func (r *LRUReplacer) Size() int          { return len(r.pinned) + r.unpinned.Len() }
func (r *LRUReplacer) PinnedCount() int   { return len(r.pinned) }
func (r *LRUReplacer) UnpinnedCount() int { return r.unpinned.Len() }
