package value

import (
	"cmp"
	"fmt"
	"strings"
)

// Compare orders a and b, returning -1, 0 or 1. Two CHAR values compare as
// plain strings. When the kinds differ, a CHAR operand holding a tagged
// index key is normalized before the kinds are checked again. Operands of
// different kinds, or of kind Unknown, are rejected.
func Compare(a, b Value) (int, error) {
	if a.kind != b.kind {
		a, b = Normalize(a), Normalize(b)
	}
	if a.kind != b.kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, a.kind, b.kind)
	}
	switch a.kind {
	case Integer:
		return cmp.Compare(a.i, b.i), nil
	case Float:
		return cmp.Compare(a.f, b.f), nil
	case Char:
		return strings.Compare(a.s, b.s), nil
	default:
		return 0, ErrUnknownKind
	}
}

func Equal(a, b Value) (bool, error) {
	c, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// Order is a total order over all values: by kind first, then payload.
// It does not normalize, so a tagged CHAR stays a CHAR. Indexes use it
// once they have checked that keys share one kind.
func Order(a, b Value) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	switch a.kind {
	case Integer:
		return cmp.Compare(a.i, b.i)
	case Float:
		return cmp.Compare(a.f, b.f)
	case Char:
		return strings.Compare(a.s, b.s)
	default:
		return 0
	}
}
