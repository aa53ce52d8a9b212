package index

import (
	"fmt"
	"iter"

	"github.com/google/btree"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/value"
)

const orderedDegree = 32

type item struct {
	key value.Value
	rid heap.RID
}

func itemLess(a, b item) bool { return value.Order(a.key, b.key) < 0 }

// InMemoryOrderedIndex keeps every entry in an in-memory ordered tree and
// persists the full map on each mutation.
//
// LessThan walks from the key downwards (nearest first); MoreThan and
// Range ascend.
type InMemoryOrderedIndex struct {
	path string
	kk   keyKind
	tree *btree.BTreeG[item]
}

var _ Index = (*InMemoryOrderedIndex)(nil)

func NewInMemoryOrderedIndex(path string) *InMemoryOrderedIndex {
	return &InMemoryOrderedIndex{
		path: path,
		tree: btree.NewG(orderedDegree, itemLess),
	}
}

func (m *InMemoryOrderedIndex) Kind() Kind   { return InMemoryOrdered }
func (m *InMemoryOrderedIndex) Path() string { return m.path }
func (m *InMemoryOrderedIndex) Len() int     { return m.tree.Len() }

func (m *InMemoryOrderedIndex) EqualTo(key value.Value) (heap.RID, bool, error) {
	key, err := m.kk.check(key)
	if err != nil {
		return heap.RID{}, false, err
	}
	it, ok := m.tree.Get(item{key: key})
	return it.rid, ok, nil
}

func (m *InMemoryOrderedIndex) LessThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	key, err := m.kk.check(key)
	if err != nil {
		return nil, err
	}
	return func(yield func(value.Value, heap.RID) bool) {
		m.tree.DescendLessOrEqual(item{key: key}, func(it item) bool {
			if !inclusive && value.Order(it.key, key) == 0 {
				return true
			}
			return yield(it.key, it.rid)
		})
	}, nil
}

func (m *InMemoryOrderedIndex) MoreThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	key, err := m.kk.check(key)
	if err != nil {
		return nil, err
	}
	return func(yield func(value.Value, heap.RID) bool) {
		m.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			if !inclusive && value.Order(it.key, key) == 0 {
				return true
			}
			return yield(it.key, it.rid)
		})
	}, nil
}

func (m *InMemoryOrderedIndex) Range(low, high value.Value, lowInclusive, highInclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	low, err := m.kk.check(low)
	if err != nil {
		return nil, err
	}
	high, err = m.kk.check(high)
	if err != nil {
		return nil, err
	}
	if low.Kind() != high.Kind() {
		return nil, fmt.Errorf("%w: range %s..%s", value.ErrKindMismatch, low.Kind(), high.Kind())
	}
	return func(yield func(value.Value, heap.RID) bool) {
		m.tree.AscendGreaterOrEqual(item{key: low}, func(it item) bool {
			if !lowInclusive && value.Order(it.key, low) == 0 {
				return true
			}
			c := value.Order(it.key, high)
			if c > 0 || (c == 0 && !highInclusive) {
				return false
			}
			return yield(it.key, it.rid)
		})
	}, nil
}

func (m *InMemoryOrderedIndex) Insert(key value.Value, rid heap.RID) error {
	key, err := m.kk.check(key)
	if err != nil {
		return err
	}
	if err := m.insert(key, rid); err != nil {
		return err
	}
	if err := writeSnapshot(m.path, m.all()); err != nil {
		m.tree.Delete(item{key: key})
		return err
	}
	return nil
}

func (m *InMemoryOrderedIndex) insert(key value.Value, rid heap.RID) error {
	if _, err := m.kk.check(key); err != nil {
		return err
	}
	if m.tree.Has(item{key: key}) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	m.kk.adopt(key)
	m.tree.ReplaceOrInsert(item{key: key, rid: rid})
	return nil
}

func (m *InMemoryOrderedIndex) Delete(key value.Value) error {
	key, err := m.kk.check(key)
	if err != nil {
		return err
	}
	old, ok := m.tree.Delete(item{key: key})
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err := writeSnapshot(m.path, m.all()); err != nil {
		m.tree.ReplaceOrInsert(old)
		return err
	}
	return nil
}

func (m *InMemoryOrderedIndex) SaveIndexes(path string, entries map[value.Value]heap.RID) error {
	return saveAll(m, func(p string) { m.path = p }, path, entries)
}

func (m *InMemoryOrderedIndex) reset() {
	m.tree.Clear(false)
	m.kk = keyKind{}
}

func (m *InMemoryOrderedIndex) all() iter.Seq2[value.Value, heap.RID] {
	return func(yield func(value.Value, heap.RID) bool) {
		m.tree.Ascend(func(it item) bool { return yield(it.key, it.rid) })
	}
}
