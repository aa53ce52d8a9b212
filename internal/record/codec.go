package record

import (
	"fmt"

	"github.com/tuannm99/novastore/internal/value"
)

// EncodeRecord packs vals into a RecordSize()-byte slot.
func (s Schema) EncodeRecord(vals []value.Value) ([]byte, error) {
	if len(vals) != len(s.Columns) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(vals), len(s.Columns))
	}
	buf := make([]byte, s.RecordSize())
	off := 0
	for i, c := range s.Columns {
		v := vals[i]
		if v.Kind() != c.Kind {
			return nil, fmt.Errorf("%w: column %q is %s, got %s", ErrColumnKind, c.Name, c.Kind, v.Kind())
		}
		if err := value.EncodeTo(buf[off:], v); err != nil {
			return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
		}
		off += c.Kind.Width()
	}
	return buf, nil
}

// DecodeRecord is the inverse of EncodeRecord.
func (s Schema) DecodeRecord(b []byte) ([]value.Value, error) {
	if len(b) < s.RecordSize() {
		return nil, fmt.Errorf("%w: record is %d bytes, schema needs %d", value.ErrShortBuffer, len(b), s.RecordSize())
	}
	out := make([]value.Value, len(s.Columns))
	off := 0
	for i, c := range s.Columns {
		v, err := value.Decode(b[off:], c.Kind)
		if err != nil {
			return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
		}
		out[i] = v
		off += c.Kind.Width()
	}
	return out, nil
}

// DecodeColumn decodes a single column without touching the others.
func (s Schema) DecodeColumn(b []byte, col int) (value.Value, error) {
	if col < 0 || col >= len(s.Columns) {
		return value.Value{}, fmt.Errorf("%w: index %d", ErrUnknownColumn, col)
	}
	off := s.Offset(col)
	return value.Decode(b[off:], s.Columns[col].Kind)
}
