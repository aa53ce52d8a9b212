package engine

import (
	"fmt"
	"iter"

	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/value"
)

// Op is a comparison usable by Lookup.
type Op int

const (
	OpEq Op = iota
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

func ParseOp(s string) (Op, error) {
	switch s {
	case "=", "==":
		return OpEq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	default:
		return 0, fmt.Errorf("engine: unknown operator %q", s)
	}
}

// match evaluates `v op key`.
func (o Op) match(v, key value.Value) (bool, error) {
	if o == OpEq {
		return value.Equal(v, key)
	}
	c, err := value.Compare(v, key)
	if err != nil {
		return false, err
	}
	switch o {
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("engine: unknown operator %s", o)
	}
}

// seek turns `column op key` into an index iterator.
func (o Op) seek(idx index.Index, key value.Value) (iter.Seq2[value.Value, heap.RID], error) {
	switch o {
	case OpEq:
		rid, ok, err := idx.EqualTo(key)
		if err != nil {
			return nil, err
		}
		return func(yield func(value.Value, heap.RID) bool) {
			if ok {
				yield(key, rid)
			}
		}, nil
	case OpLt:
		return idx.LessThan(key, false)
	case OpLe:
		return idx.LessThan(key, true)
	case OpGt:
		return idx.MoreThan(key, false)
	case OpGe:
		return idx.MoreThan(key, true)
	default:
		return nil, fmt.Errorf("engine: unknown operator %s", o)
	}
}
