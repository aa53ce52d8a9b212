package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/value"
)

const DefaultMaxOpen = 64

// Registry hands out open index instances keyed by snapshot path.
//
// Instances live in a bounded ristretto cache. Losing one is harmless:
// every mutation has already been written through, so a miss just replays
// the snapshot again.
type Registry struct {
	root  string
	opts  Options
	cache *ristretto.Cache[string, Index]
}

func NewRegistry(root string, opts Options, maxOpen int64) (*Registry, error) {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Index]{
		NumCounters:        maxOpen * 10,
		MaxCost:            maxOpen,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict: func(it *ristretto.Item[Index]) {
			if it.Value != nil {
				slog.Debug("index: registry evict", "path", it.Value.Path())
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("index: registry cache: %w", err)
	}
	return &Registry{root: root, opts: opts, cache: cache}, nil
}

func (r *Registry) Path(table, column string, kind Kind) string {
	return PathFor(r.root, table, column, kind)
}

// Get returns the index for (table, column, kind), opening it from its
// snapshot when it is not cached.
func (r *Registry) Get(table, column string, kind Kind) (Index, error) {
	path := r.Path(table, column, kind)
	if idx, ok := r.cache.Get(path); ok {
		return idx, nil
	}

	idx, err := Open(kind, path, r.opts)
	if err != nil {
		return nil, err
	}
	r.remember(path, idx)
	return idx, nil
}

// Build creates (or replaces) the index for (table, column, kind) from a
// full key->rid map.
func (r *Registry) Build(table, column string, kind Kind, entries map[value.Value]heap.RID) (Index, error) {
	path := r.Path(table, column, kind)
	r.cache.Del(path)

	idx, err := Open(kind, "", r.opts)
	if err != nil {
		return nil, err
	}
	if err := idx.SaveIndexes(path, entries); err != nil {
		return nil, err
	}
	r.remember(path, idx)
	return idx, nil
}

func (r *Registry) remember(path string, idx Index) {
	r.cache.Set(path, idx, 1)
	r.cache.Wait()
}

// Drop forgets the index and removes its snapshot.
func (r *Registry) Drop(table, column string, kind Kind) error {
	path := r.Path(table, column, kind)
	r.cache.Del(path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("index: drop %s: %w", path, err)
	}
	slog.Debug("index: dropped", "path", path)
	return nil
}

func (r *Registry) Close() {
	r.cache.Close()
}
