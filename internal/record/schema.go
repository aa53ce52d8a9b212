package record

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novastore/internal/value"
)

var (
	ErrColumnCount   = errors.New("record: wrong number of values")
	ErrColumnKind    = errors.New("record: value kind does not match column")
	ErrUnknownColumn = errors.New("record: unknown column")
	ErrBadSchema     = errors.New("record: invalid schema")
)

type Column struct {
	Name string     `json:"name"`
	Kind value.Kind `json:"kind"`
}

// Schema is an ordered list of fixed-width columns. A record is the
// concatenation of its values at their kind widths, in column order.
type Schema struct {
	Columns []Column `json:"columns"`
}

func (s Schema) NumCols() int { return len(s.Columns) }

// Validate rejects empty schemas, duplicate names and UNKNOWN columns.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrBadSchema)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrBadSchema)
		}
		if c.Kind == value.Unknown {
			return fmt.Errorf("%w: column %q has no kind", ErrBadSchema, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrBadSchema, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// RecordSize is the byte width of one encoded record.
func (s Schema) RecordSize() int {
	n := 0
	for _, c := range s.Columns {
		n += c.Kind.Width()
	}
	return n
}

// ColumnIndex returns the position of name, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Offset is the byte offset of column col inside a record.
func (s Schema) Offset(col int) int {
	off := 0
	for _, c := range s.Columns[:col] {
		off += c.Kind.Width()
	}
	return off
}
