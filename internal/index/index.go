package index

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/value"
)

// Kind names an index implementation. The string is also the suffix of
// the snapshot file name.
type Kind string

const (
	InMemoryOrdered Kind = "InMemoryOrdered"
	BTree           Kind = "BTREE"
)

var (
	ErrDuplicateKey = errors.New("index: duplicate key")
	ErrKeyNotFound  = errors.New("index: key not found")
	ErrUnknownKind  = errors.New("index: unknown index kind")
	ErrBadOrder     = errors.New("index: branching factor must be at least 3")
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "INMEMORYORDERED", "ORDERED", "MEMORY":
		return InMemoryOrdered, nil
	case "BTREE", "BPLUSTREE", "B+TREE":
		return BTree, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Index maps unique keys to row locations.
//
// Every mutation rewrites the snapshot at Path before returning. The
// iterators read the live structure and must not be interleaved with
// mutations of the same index.
type Index interface {
	Kind() Kind
	Path() string
	Len() int

	EqualTo(key value.Value) (heap.RID, bool, error)
	LessThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error)
	MoreThan(key value.Value, inclusive bool) (iter.Seq2[value.Value, heap.RID], error)
	// Range ascends over [low, high] with per-end inclusivity.
	Range(low, high value.Value, lowInclusive, highInclusive bool) (iter.Seq2[value.Value, heap.RID], error)

	Insert(key value.Value, rid heap.RID) error
	Delete(key value.Value) error
	// SaveIndexes replaces the whole content with entries and snapshots it
	// to path (the current path when empty).
	SaveIndexes(path string, entries map[value.Value]heap.RID) error
}

type Options struct {
	// Order is the B+ tree branching factor.
	Order int
}

const DefaultOrder = 128

func (o Options) order() int {
	if o.Order == 0 {
		return DefaultOrder
	}
	return o.Order
}

// PathFor is <root>/meta/<table>_<column>_<KIND>.json.
func PathFor(root, table, column string, kind Kind) string {
	return filepath.Join(root, "meta", fmt.Sprintf("%s_%s_%s.json", table, column, kind))
}

// Open builds an index of kind, replaying the snapshot at path if one
// exists. An empty path gives an index that is never persisted.
func Open(kind Kind, path string, opts Options) (Index, error) {
	var idx mutableIndex
	switch kind {
	case InMemoryOrdered:
		idx = NewInMemoryOrderedIndex(path)
	case BTree:
		t, err := NewBPlusTreeIndex(path, opts.order())
		if err != nil {
			return nil, err
		}
		idx = t
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	entries, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := idx.insert(e.Key, e.RID); err != nil {
			return nil, fmt.Errorf("index: replay %s: %w", path, err)
		}
	}
	return idx, nil
}

// Entry is one (key, rid) pair.
type Entry struct {
	Key value.Value
	RID heap.RID
}

// mutableIndex is the shared plumbing of both implementations: raw
// mutation without snapshotting, used by replay and SaveIndexes.
type mutableIndex interface {
	Index
	insert(key value.Value, rid heap.RID) error
	reset()
	all() iter.Seq2[value.Value, heap.RID]
}

// keyKind guards the single key kind of an index. The kind is fixed by
// the first key stored.
type keyKind struct {
	kind value.Kind
}

// check returns key in the index's kind. A CHAR carrying a tagged key is
// normalized first so callers may pass encoded keys.
func (k *keyKind) check(key value.Value) (value.Value, error) {
	if key.Kind() == value.Unknown {
		return value.Value{}, value.ErrUnknownKind
	}
	if k.kind == value.Unknown || key.Kind() == k.kind {
		return key, nil
	}
	if n := value.Normalize(key); n.Kind() == k.kind {
		return n, nil
	}
	return value.Value{}, fmt.Errorf("%w: index holds %s, got %s", value.ErrKindMismatch, k.kind, key.Kind())
}

func (k *keyKind) adopt(key value.Value) {
	if k.kind == value.Unknown {
		k.kind = key.Kind()
	}
}

// saveAll implements SaveIndexes for both kinds.
func saveAll(idx mutableIndex, setPath func(string), path string, entries map[value.Value]heap.RID) error {
	var kk keyKind
	norm := make([]Entry, 0, len(entries))
	for k, rid := range entries {
		key, err := kk.check(k)
		if err != nil {
			return err
		}
		kk.adopt(key)
		norm = append(norm, Entry{Key: key, RID: rid})
	}
	if path != "" {
		setPath(path)
	}
	idx.reset()
	for _, e := range norm {
		if err := idx.insert(e.Key, e.RID); err != nil {
			return err
		}
	}
	return writeSnapshot(idx.Path(), idx.all())
}

// All iterates every entry of idx in ascending key order.
func All(idx Index) iter.Seq2[value.Value, heap.RID] {
	if m, ok := idx.(mutableIndex); ok {
		return m.all()
	}
	return func(func(value.Value, heap.RID) bool) {}
}
