package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tuannm99/novastore/internal/alias/bx"
)

// Kind is the closed set of column types a Value can carry.
type Kind uint8

const (
	Unknown Kind = iota
	Integer
	Float
	Char
)

const (
	IntSize   = 8
	FloatSize = 8
	// CharSize is the on-disk width of a CHAR column: a 4-byte length prefix
	// followed by the character data.
	CharSize   = 64
	charPrefix = 4
	MaxCharLen = CharSize - charPrefix
)

var (
	ErrKindMismatch = errors.New("value: kind mismatch")
	ErrUnknownKind  = errors.New("value: unknown kind")
	ErrCharTooLong  = errors.New("value: char data exceeds capacity")
	ErrShortBuffer  = errors.New("value: buffer too short")
	ErrBadKey       = errors.New("value: malformed index key")
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Char:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// Width is the fixed number of bytes a value of this kind occupies in a record.
func (k Kind) Width() int {
	switch k {
	case Integer:
		return IntSize
	case Float:
		return FloatSize
	case Char:
		return CharSize
	default:
		return 0
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER", "INT":
		return Integer, nil
	case "FLOAT", "DOUBLE":
		return Float, nil
	case "CHAR", "VARCHAR":
		return Char, nil
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is a tagged datum. Only the payload field matching kind is meaningful.
// The zero Value has kind Unknown.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func NewInt(v int64) Value     { return Value{kind: Integer, i: v} }
func NewFloat(v float64) Value { return Value{kind: Float, f: v} }

// NewChar fails with ErrCharTooLong when s does not fit in a CHAR column.
func NewChar(s string) (Value, error) {
	if len(s) > MaxCharLen {
		return Value{}, fmt.Errorf("%w: %d > %d bytes", ErrCharTooLong, len(s), MaxCharLen)
	}
	return Value{kind: Char, s: s}, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

func (v Value) Char() string { return v.s }

func (v Value) String() string {
	switch v.kind {
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Char:
		return v.s
	default:
		return "<unknown>"
	}
}

// Encode returns the fixed-width binary form of v.
func Encode(v Value) ([]byte, error) {
	buf := make([]byte, v.kind.Width())
	if err := EncodeTo(buf, v); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo writes v into dst, which must hold at least v.Kind().Width() bytes.
// Numbers are big-endian; CHAR is a big-endian length followed by the bytes,
// with the rest of the slot zeroed.
func EncodeTo(dst []byte, v Value) error {
	if v.kind == Unknown {
		return ErrUnknownKind
	}
	w := v.kind.Width()
	if len(dst) < w {
		return fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, w, len(dst))
	}
	switch v.kind {
	case Integer:
		bx.PutI64BE(dst, v.i)
	case Float:
		bx.PutU64BE(dst, math.Float64bits(v.f))
	case Char:
		if len(v.s) > MaxCharLen {
			return ErrCharTooLong
		}
		bx.PutU32BE(dst, uint32(len(v.s)))
		n := copy(dst[charPrefix:w], v.s)
		clear(dst[charPrefix+n : w])
	}
	return nil
}

// Decode reads a value of kind k from the front of b.
func Decode(b []byte, k Kind) (Value, error) {
	w := k.Width()
	if k == Unknown {
		return Value{}, ErrUnknownKind
	}
	if len(b) < w {
		return Value{}, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, w, len(b))
	}
	switch k {
	case Integer:
		return NewInt(bx.I64BE(b)), nil
	case Float:
		return NewFloat(math.Float64frombits(bx.U64BE(b))), nil
	default:
		n := int(bx.U32BE(b))
		if n > MaxCharLen {
			return Value{}, fmt.Errorf("%w: stored length %d", ErrCharTooLong, n)
		}
		return Value{kind: Char, s: string(b[charPrefix : charPrefix+n])}, nil
	}
}

// Parse reads a literal of kind k, as typed on a command line.
func Parse(k Kind, s string) (Value, error) {
	switch k {
	case Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("value: parse %s %q: %w", k, s, err)
		}
		return NewInt(n), nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("value: parse %s %q: %w", k, s, err)
		}
		return NewFloat(f), nil
	case Char:
		return NewChar(s)
	default:
		return Value{}, ErrUnknownKind
	}
}
