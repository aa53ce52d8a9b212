package value

import (
	"fmt"
	"strconv"
	"strings"
)

const keySep = "_"

// EncodeKey renders v as "<KIND>_<text>", the key form used by persisted
// index snapshots.
func EncodeKey(v Value) (string, error) {
	if v.kind == Unknown {
		return "", ErrUnknownKind
	}
	return v.kind.String() + keySep + v.String(), nil
}

// ParseKey is the inverse of EncodeKey.
func ParseKey(s string) (Value, error) {
	tag, body, ok := strings.Cut(s, keySep)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	switch tag {
	case "INTEGER":
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q: %v", ErrBadKey, s, err)
		}
		return NewInt(n), nil
	case "FLOAT":
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q: %v", ErrBadKey, s, err)
		}
		return NewFloat(f), nil
	case "CHAR":
		return NewChar(body)
	default:
		return Value{}, fmt.Errorf("%w: unknown tag %q", ErrBadKey, tag)
	}
}

// Normalize converts a CHAR value that carries a snapshot key tag back into
// the typed value it encodes. Anything else is returned unchanged.
func Normalize(v Value) Value {
	if v.kind != Char || !strings.Contains(v.s, keySep) {
		return v
	}
	parsed, err := ParseKey(v.s)
	if err != nil {
		return v
	}
	return parsed
}
