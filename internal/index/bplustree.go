package index

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sort"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/value"
)

// node is either a leaf (keys + rids, linked through next) or an internal
// node where keys[i] separates children[i] (keys < keys[i]) from
// children[i+1] (keys >= keys[i]).
type node struct {
	leaf     bool
	keys     []value.Value
	rids     []heap.RID
	children []*node
	next     *node
}

// BPlusTreeIndex is an in-memory B+ tree with linked leaves. Every node
// but the root holds between minKeys and maxKeys keys. All iterators
// ascend by key.
type BPlusTreeIndex struct {
	path    string
	order   int
	maxKeys int
	minKeys int

	kk     keyKind
	root   *node
	size   int
	height int
}

var _ Index = (*BPlusTreeIndex)(nil)

func NewBPlusTreeIndex(path string, order int) (*BPlusTreeIndex, error) {
	if order < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrBadOrder, order)
	}
	t := &BPlusTreeIndex{
		path:    path,
		order:   order,
		maxKeys: order - 1,
		minKeys: (order - 1) / 2,
	}
	t.reset()
	return t, nil
}

func (t *BPlusTreeIndex) Kind() Kind   { return BTree }
func (t *BPlusTreeIndex) Path() string { return t.path }
func (t *BPlusTreeIndex) Len() int     { return t.size }
func (t *BPlusTreeIndex) Order() int   { return t.order }
func (t *BPlusTreeIndex) Height() int  { return t.height }

func (t *BPlusTreeIndex) reset() {
	t.root = &node{leaf: true}
	t.size = 0
	t.height = 1
	t.kk = keyKind{}
}

// lowerBound is the first i with keys[i] >= k.
func lowerBound(keys []value.Value, k value.Value) int {
	return sort.Search(len(keys), func(i int) bool { return value.Order(keys[i], k) >= 0 })
}

// upperBound is the first i with keys[i] > k.
func upperBound(keys []value.Value, k value.Value) int {
	return sort.Search(len(keys), func(i int) bool { return value.Order(keys[i], k) > 0 })
}

func (t *BPlusTreeIndex) findLeaf(k value.Value) *node {
	n := t.root
	for !n.leaf {
		n = n.children[upperBound(n.keys, k)]
	}
	return n
}

func (t *BPlusTreeIndex) leftmostLeaf() *node {
	n := t.root
	for !n.leaf {
		n = n.children[0]
	}
	return n
}

func (t *BPlusTreeIndex) EqualTo(key value.Value) (heap.RID, bool, error) {
	key, err := t.kk.check(key)
	if err != nil {
		return heap.RID{}, false, err
	}
	leaf := t.findLeaf(key)
	i := lowerBound(leaf.keys, key)
	if i < len(leaf.keys) && value.Order(leaf.keys[i], key) == 0 {
		return leaf.rids[i], true, nil
	}
	return heap.RID{}, false, nil
}

// walk yields leaf entries from position i of leaf onwards while keep
// holds.
func walk(leaf *node, i int, keep func(value.Value) bool) iter.Seq2[value.Value, heap.RID] {
	return func(yield func(value.Value, heap.RID) bool) {
		for n := leaf; n != nil; n, i = n.next, 0 {
			for ; i < len(n.keys); i++ {
				if !keep(n.keys[i]) || !yield(n.keys[i], n.rids[i]) {
					return
				}
			}
		}
	}
}

func (t *BPlusTreeIndex) LessThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	key, err := t.kk.check(key)
	if err != nil {
		return nil, err
	}
	return walk(t.leftmostLeaf(), 0, func(k value.Value) bool {
		c := value.Order(k, key)
		return c < 0 || (c == 0 && inclusive)
	}), nil
}

func (t *BPlusTreeIndex) MoreThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	key, err := t.kk.check(key)
	if err != nil {
		return nil, err
	}
	leaf, i := t.seek(key, inclusive)
	return walk(leaf, i, func(value.Value) bool { return true }), nil
}

// seek positions at the first key > key, or >= key when inclusive.
func (t *BPlusTreeIndex) seek(key value.Value, inclusive bool) (*node, int) {
	leaf := t.findLeaf(key)
	if inclusive {
		return leaf, lowerBound(leaf.keys, key)
	}
	return leaf, upperBound(leaf.keys, key)
}

func (t *BPlusTreeIndex) Range(low, high value.Value, lowInclusive, highInclusive bool) (iter.Seq2[value.Value, heap.RID], error) {
	low, err := t.kk.check(low)
	if err != nil {
		return nil, err
	}
	high, err = t.kk.check(high)
	if err != nil {
		return nil, err
	}
	if low.Kind() != high.Kind() {
		return nil, fmt.Errorf("%w: range %s..%s", value.ErrKindMismatch, low.Kind(), high.Kind())
	}
	leaf, i := t.seek(low, lowInclusive)
	return walk(leaf, i, func(k value.Value) bool {
		c := value.Order(k, high)
		return c < 0 || (c == 0 && highInclusive)
	}), nil
}

func (t *BPlusTreeIndex) Insert(key value.Value, rid heap.RID) error {
	key, err := t.kk.check(key)
	if err != nil {
		return err
	}
	if err := t.insert(key, rid); err != nil {
		return err
	}
	if err := writeSnapshot(t.path, t.all()); err != nil {
		// Keep memory in step with the last snapshot on disk.
		if rerr := t.remove(key); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

func (t *BPlusTreeIndex) insert(key value.Value, rid heap.RID) error {
	if _, err := t.kk.check(key); err != nil {
		return err
	}
	sep, right, err := t.insertInto(t.root, key, rid)
	if err != nil {
		return err
	}
	if right != nil {
		t.root = &node{
			keys:     []value.Value{sep},
			children: []*node{t.root, right},
		}
		t.height++
		slog.Debug("index: bplustree root split", "path", t.path, "height", t.height)
	}
	t.kk.adopt(key)
	t.size++
	return nil
}

// insertInto returns the separator and new right sibling when n split.
func (t *BPlusTreeIndex) insertInto(n *node, key value.Value, rid heap.RID) (value.Value, *node, error) {
	if n.leaf {
		i := lowerBound(n.keys, key)
		if i < len(n.keys) && value.Order(n.keys[i], key) == 0 {
			return value.Value{}, nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		n.keys = slices.Insert(n.keys, i, key)
		n.rids = slices.Insert(n.rids, i, rid)
		if len(n.keys) <= t.maxKeys {
			return value.Value{}, nil, nil
		}
		mid := len(n.keys) / 2
		right := &node{
			leaf: true,
			keys: slices.Clone(n.keys[mid:]),
			rids: slices.Clone(n.rids[mid:]),
			next: n.next,
		}
		n.keys = n.keys[:mid]
		n.rids = n.rids[:mid]
		n.next = right
		return right.keys[0], right, nil
	}

	i := upperBound(n.keys, key)
	sep, child, err := t.insertInto(n.children[i], key, rid)
	if err != nil || child == nil {
		return value.Value{}, nil, err
	}
	n.keys = slices.Insert(n.keys, i, sep)
	n.children = slices.Insert(n.children, i+1, child)
	if len(n.keys) <= t.maxKeys {
		return value.Value{}, nil, nil
	}

	// The middle key moves up; it stays in neither half.
	mid := len(n.keys) / 2
	up := n.keys[mid]
	right := &node{
		keys:     slices.Clone(n.keys[mid+1:]),
		children: slices.Clone(n.children[mid+1:]),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]
	return up, right, nil
}

func (t *BPlusTreeIndex) Delete(key value.Value) error {
	key, err := t.kk.check(key)
	if err != nil {
		return err
	}
	old, ok, err := t.EqualTo(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err := t.remove(key); err != nil {
		return err
	}
	if err := writeSnapshot(t.path, t.all()); err != nil {
		if rerr := t.insert(key, old); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

func (t *BPlusTreeIndex) remove(key value.Value) error {
	if err := t.deleteFrom(t.root, key); err != nil {
		return err
	}
	t.size--
	if !t.root.leaf && len(t.root.keys) == 0 {
		t.root = t.root.children[0]
		t.height--
	}
	return nil
}

func (t *BPlusTreeIndex) deleteFrom(n *node, key value.Value) error {
	if n.leaf {
		i := lowerBound(n.keys, key)
		if i >= len(n.keys) || value.Order(n.keys[i], key) != 0 {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		n.keys = slices.Delete(n.keys, i, i+1)
		n.rids = slices.Delete(n.rids, i, i+1)
		return nil
	}

	i := upperBound(n.keys, key)
	if err := t.deleteFrom(n.children[i], key); err != nil {
		return err
	}
	if len(n.children[i].keys) < t.minKeys {
		t.rebalance(n, i)
	}
	return nil
}

// rebalance fixes the underfull child parent.children[i] by borrowing
// from a sibling that can spare a key, or else merging with one.
func (t *BPlusTreeIndex) rebalance(parent *node, i int) {
	child := parent.children[i]
	var left, right *node
	if i > 0 {
		left = parent.children[i-1]
	}
	if i+1 < len(parent.children) {
		right = parent.children[i+1]
	}

	switch {
	case left != nil && len(left.keys) > t.minKeys:
		last := len(left.keys) - 1
		if child.leaf {
			child.keys = slices.Insert(child.keys, 0, left.keys[last])
			child.rids = slices.Insert(child.rids, 0, left.rids[last])
			left.keys, left.rids = left.keys[:last], left.rids[:last]
			parent.keys[i-1] = child.keys[0]
			return
		}
		child.keys = slices.Insert(child.keys, 0, parent.keys[i-1])
		child.children = slices.Insert(child.children, 0, left.children[last+1])
		parent.keys[i-1] = left.keys[last]
		left.keys, left.children = left.keys[:last], left.children[:last+1]

	case right != nil && len(right.keys) > t.minKeys:
		if child.leaf {
			child.keys = append(child.keys, right.keys[0])
			child.rids = append(child.rids, right.rids[0])
			right.keys = slices.Delete(right.keys, 0, 1)
			right.rids = slices.Delete(right.rids, 0, 1)
			parent.keys[i] = right.keys[0]
			return
		}
		child.keys = append(child.keys, parent.keys[i])
		child.children = append(child.children, right.children[0])
		parent.keys[i] = right.keys[0]
		right.keys = slices.Delete(right.keys, 0, 1)
		right.children = slices.Delete(right.children, 0, 1)

	case left != nil:
		t.merge(parent, i-1)
	case right != nil:
		t.merge(parent, i)
	}
}

// merge folds parent.children[j+1] into parent.children[j].
func (t *BPlusTreeIndex) merge(parent *node, j int) {
	l, r := parent.children[j], parent.children[j+1]
	if l.leaf {
		l.keys = append(l.keys, r.keys...)
		l.rids = append(l.rids, r.rids...)
		l.next = r.next
	} else {
		l.keys = append(l.keys, parent.keys[j])
		l.keys = append(l.keys, r.keys...)
		l.children = append(l.children, r.children...)
	}
	parent.keys = slices.Delete(parent.keys, j, j+1)
	parent.children = slices.Delete(parent.children, j+1, j+2)
}

func (t *BPlusTreeIndex) SaveIndexes(path string, entries map[value.Value]heap.RID) error {
	return saveAll(t, func(p string) { t.path = p }, path, entries)
}

func (t *BPlusTreeIndex) all() iter.Seq2[value.Value, heap.RID] {
	return walk(t.leftmostLeaf(), 0, func(value.Value) bool { return true })
}
