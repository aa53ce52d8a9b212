package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore/internal/value"
)

// makeTestSchema builds a simple schema used across tests.
func makeTestSchema() Schema {
	return Schema{
		Columns: []Column{
			{Name: "id", Kind: value.Integer},
			{Name: "name", Kind: value.Char},
			{Name: "score", Kind: value.Float},
		},
	}
}

func mustChar(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.NewChar(s)
	require.NoError(t, err)
	return v
}

func TestSchema_Layout(t *testing.T) {
	s := makeTestSchema()
	require.NoError(t, s.Validate())
	require.Equal(t, 8+64+8, s.RecordSize())
	require.Equal(t, 0, s.Offset(0))
	require.Equal(t, 8, s.Offset(1))
	require.Equal(t, 72, s.Offset(2))
	require.Equal(t, 2, s.ColumnIndex("score"))
	require.Equal(t, -1, s.ColumnIndex("nope"))
}

func TestSchema_Validate(t *testing.T) {
	require.ErrorIs(t, Schema{}.Validate(), ErrBadSchema)
	require.ErrorIs(t, Schema{Columns: []Column{{Name: "a", Kind: value.Integer}, {Name: "a", Kind: value.Char}}}.Validate(), ErrBadSchema)
	require.ErrorIs(t, Schema{Columns: []Column{{Name: "a"}}}.Validate(), ErrBadSchema)
	require.ErrorIs(t, Schema{Columns: []Column{{Kind: value.Float}}}.Validate(), ErrBadSchema)
}

func TestEncodeDecodeRecord_RoundTrip(t *testing.T) {
	s := makeTestSchema()
	vals := []value.Value{value.NewInt(-7), mustChar(t, "alice"), value.NewFloat(3.5)}

	b, err := s.EncodeRecord(vals)
	require.NoError(t, err)
	require.Len(t, b, s.RecordSize())

	got, err := s.DecodeRecord(b)
	require.NoError(t, err)
	require.Equal(t, vals, got)

	name, err := s.DecodeColumn(b, 1)
	require.NoError(t, err)
	require.Equal(t, "alice", name.Char())

	_, err = s.DecodeColumn(b, 3)
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestEncodeRecord_Errors(t *testing.T) {
	s := makeTestSchema()

	_, err := s.EncodeRecord([]value.Value{value.NewInt(1)})
	require.ErrorIs(t, err, ErrColumnCount)

	_, err = s.EncodeRecord([]value.Value{value.NewInt(1), value.NewInt(2), value.NewFloat(1)})
	require.ErrorIs(t, err, ErrColumnKind)

	_, err = s.DecodeRecord(make([]byte, 10))
	require.ErrorIs(t, err, value.ErrShortBuffer)
}
