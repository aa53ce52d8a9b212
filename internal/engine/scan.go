package engine

import (
	"fmt"
	"iter"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/value"
)

// IndexScan materializes the rows behind an index iterator. It keeps one
// heap page pinned and only swaps it when the next RID is on another
// page.
type IndexScan struct {
	fh     *heap.FileHandle
	schema record.Schema
	seq    iter.Seq2[value.Value, heap.RID]

	page *heap.PageHandle
}

func newIndexScan(fh *heap.FileHandle, schema record.Schema, seq iter.Seq2[value.Value, heap.RID]) *IndexScan {
	return &IndexScan{fh: fh, schema: schema, seq: seq}
}

func (s *IndexScan) release() error {
	if s.page == nil {
		return nil
	}
	n := s.page.PageNum()
	s.page = nil
	return s.fh.UnpinPageHandle(n, false)
}

// Each calls fn for every row in index order until fn returns false.
func (s *IndexScan) Each(fn func(Row) bool) (err error) {
	defer func() {
		if rerr := s.release(); err == nil {
			err = rerr
		}
	}()

	for _, rid := range s.seq {
		if s.page == nil || s.page.PageNum() != rid.PageNumber {
			if err := s.release(); err != nil {
				return err
			}
			if s.page, err = s.fh.FetchPageHandle(rid.PageNumber); err != nil {
				return fmt.Errorf("engine: index points at %s: %w", rid, err)
			}
		}
		rec, err := s.page.Record(rid.SlotNumber)
		if err != nil {
			return fmt.Errorf("engine: index points at %s: %w", rid, err)
		}
		vals, err := s.schema.DecodeRecord(rec)
		if err != nil {
			return err
		}
		if !fn(Row{RID: rid, Values: vals}) {
			return nil
		}
	}
	return nil
}

func (s *IndexScan) Collect() ([]Row, error) {
	var out []Row
	err := s.Each(func(r Row) bool {
		out = append(out, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
