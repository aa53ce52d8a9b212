package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/value"
)

func usersSchema() record.Schema {
	return record.Schema{Columns: []record.Column{
		{Name: "id", Kind: value.Integer},
		{Name: "name", Kind: value.Char},
	}}
}

func TestCatalog_CreateSaveLoad(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root)
	require.NoError(t, err)
	assert.Empty(t, c.Tables())

	m, err := c.Create("users", usersSchema())
	require.NoError(t, err)
	assert.Equal(t, "users/data", m.DataFile())
	require.NoError(t, c.SetIndex("users", "id", index.BTree))

	_, err = c.Create("orders", usersSchema())
	require.NoError(t, err)
	require.NoError(t, c.Save())

	c2, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, c2.Tables())

	m2, err := c2.Get("users")
	require.NoError(t, err)
	assert.Equal(t, usersSchema(), m2.Schema)
	assert.Equal(t, m.ID, m2.ID)
	assert.NotEqual(t, uuid.Nil, m2.ID)
	k, ok := m2.IndexKind("id")
	require.True(t, ok)
	assert.Equal(t, index.BTree, k)
}

func TestCatalog_Errors(t *testing.T) {
	c, err := Load(t.TempDir())
	require.NoError(t, err)

	_, err = c.Create("bad/name", usersSchema())
	require.ErrorIs(t, err, ErrBadName)
	_, err = c.Create("t", record.Schema{})
	require.ErrorIs(t, err, record.ErrBadSchema)

	_, err = c.Create("t", usersSchema())
	require.NoError(t, err)
	_, err = c.Create("t", usersSchema())
	require.ErrorIs(t, err, ErrTableExists)

	require.ErrorIs(t, c.SetIndex("nope", "id", index.BTree), ErrTableNotFound)
	require.ErrorIs(t, c.SetIndex("t", "nope", index.BTree), ErrColumnNotFound)
	require.NoError(t, c.SetIndex("t", "id", index.InMemoryOrdered))
	require.ErrorIs(t, c.SetIndex("t", "id", index.BTree), ErrIndexExists)

	k, err := c.DropIndex("t", "id")
	require.NoError(t, err)
	assert.Equal(t, index.InMemoryOrdered, k)
	_, err = c.DropIndex("t", "id")
	require.ErrorIs(t, err, ErrIndexNotFound)

	require.NoError(t, c.Drop("t"))
	require.ErrorIs(t, c.Drop("t"), ErrTableNotFound)
	_, err = c.Get("t")
	require.ErrorIs(t, err, ErrTableNotFound)
}
