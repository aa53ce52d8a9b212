package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/value"
)

// Row is a decoded record and where it lives.
type Row struct {
	RID    heap.RID
	Values []value.Value
}

// Table is an open heap file plus the indexes the catalog lists for it.
// For now we assume single-threaded usage; no table-level lock.
type Table struct {
	db   *Database
	meta *catalog.TableMeta
	fh   *heap.FileHandle
}

func (t *Table) ID() uuid.UUID          { return t.meta.ID }
func (t *Table) Name() string           { return t.meta.Name }
func (t *Table) Schema() record.Schema  { return t.meta.Schema }
func (t *Table) File() *heap.FileHandle { return t.fh }

type boundIndex struct {
	column string
	col    int
	idx    index.Index
}

func (t *Table) indexes() ([]boundIndex, error) {
	out := make([]boundIndex, 0, len(t.meta.Indexes))
	for _, c := range sortedColumns(t.meta.Indexes) {
		idx, err := t.db.indexes.Get(t.meta.Name, c, t.meta.Indexes[c])
		if err != nil {
			return nil, err
		}
		out = append(out, boundIndex{column: c, col: t.meta.Schema.ColumnIndex(c), idx: idx})
	}
	return out, nil
}

// Insert stores a row and adds it to every index. Keys already present
// in an index are rejected before anything is written.
func (t *Table) Insert(vals []value.Value) (heap.RID, error) {
	rec, err := t.meta.Schema.EncodeRecord(vals)
	if err != nil {
		return heap.RID{}, err
	}
	idxs, err := t.indexes()
	if err != nil {
		return heap.RID{}, err
	}
	for _, bi := range idxs {
		_, exists, err := bi.idx.EqualTo(vals[bi.col])
		if err != nil {
			return heap.RID{}, err
		}
		if exists {
			return heap.RID{}, fmt.Errorf("%w: %s.%s = %s", index.ErrDuplicateKey, t.meta.Name, bi.column, vals[bi.col])
		}
	}

	rid, err := t.fh.InsertRecord(rec)
	if err != nil {
		return heap.RID{}, err
	}
	for i, bi := range idxs {
		if err := bi.idx.Insert(vals[bi.col], rid); err != nil {
			// Undo what already happened so heap and indexes agree.
			errs := []error{fmt.Errorf("engine: index %s.%s: %w", t.meta.Name, bi.column, err)}
			for _, done := range idxs[:i] {
				if derr := done.idx.Delete(vals[done.col]); derr != nil {
					errs = append(errs, fmt.Errorf("engine: roll back index %s.%s: %w", t.meta.Name, done.column, derr))
				}
			}
			if derr := t.fh.DeleteRecord(rid); derr != nil {
				errs = append(errs, fmt.Errorf("engine: roll back %s: %w", rid, derr))
			}
			return heap.RID{}, errors.Join(errs...)
		}
	}
	return rid, nil
}

func (t *Table) Get(rid heap.RID) ([]value.Value, error) {
	rec, err := t.fh.GetRecord(rid)
	if err != nil {
		return nil, err
	}
	return t.meta.Schema.DecodeRecord(rec)
}

// Delete removes the row at rid and its entries in every index.
func (t *Table) Delete(rid heap.RID) error {
	vals, err := t.Get(rid)
	if err != nil {
		return err
	}
	idxs, err := t.indexes()
	if err != nil {
		return err
	}
	if err := t.fh.DeleteRecord(rid); err != nil {
		return err
	}

	var errs []error
	for _, bi := range idxs {
		key := vals[bi.col]
		got, ok, err := bi.idx.EqualTo(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || got != rid {
			slog.Warn("engine: index entry missing for deleted row",
				"table", t.meta.Name, "column", bi.column, "key", key, "rid", rid)
			continue
		}
		if err := bi.idx.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Scan calls fn for every row in heap order until fn returns false.
func (t *Table) Scan(fn func(Row) bool) error {
	var decodeErr error
	err := t.fh.Scan(func(rid heap.RID, rec []byte) bool {
		vals, err := t.meta.Schema.DecodeRecord(rec)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(Row{RID: rid, Values: vals})
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// Lookup returns the rows whose column satisfies `column op key`. With an
// index on column the index drives the scan; without one every row is
// read and filtered.
func (t *Table) Lookup(column string, op Op, key value.Value) ([]Row, error) {
	col := t.meta.Schema.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", catalog.ErrColumnNotFound, t.meta.Name, column)
	}
	kind, ok := t.meta.IndexKind(column)
	if !ok {
		slog.Warn("engine: no index, falling back to full scan",
			"table", t.meta.Name, "column", column, "op", op)
		return t.filter(col, func(v value.Value) (bool, error) { return op.match(v, key) })
	}

	idx, err := t.db.indexes.Get(t.meta.Name, column, kind)
	if err != nil {
		return nil, err
	}
	seq, err := op.seek(idx, key)
	if err != nil {
		return nil, err
	}
	return newIndexScan(t.fh, t.meta.Schema, seq).Collect()
}

// LookupRange returns the rows with low <= column < high.
func (t *Table) LookupRange(column string, low, high value.Value) ([]Row, error) {
	col := t.meta.Schema.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", catalog.ErrColumnNotFound, t.meta.Name, column)
	}
	kind, ok := t.meta.IndexKind(column)
	if !ok {
		slog.Warn("engine: no index, falling back to full scan",
			"table", t.meta.Name, "column", column, "op", "between")
		return t.filter(col, func(v value.Value) (bool, error) {
			lo, err := OpGe.match(v, low)
			if err != nil || !lo {
				return false, err
			}
			return OpLt.match(v, high)
		})
	}

	idx, err := t.db.indexes.Get(t.meta.Name, column, kind)
	if err != nil {
		return nil, err
	}
	seq, err := idx.Range(low, high, true, false)
	if err != nil {
		return nil, err
	}
	return newIndexScan(t.fh, t.meta.Schema, seq).Collect()
}

func (t *Table) filter(col int, pred func(value.Value) (bool, error)) ([]Row, error) {
	var out []Row
	var predErr error
	err := t.Scan(func(r Row) bool {
		ok, err := pred(r.Values[col])
		if err != nil {
			predErr = err
			return false
		}
		if ok {
			out = append(out, r)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, predErr
}
