package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/engine"
	"github.com/tuannm99/novastore/internal/record"
)

func TestRun_Commands(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.Storage.Workdir = t.TempDir()
	cfg.Storage.PageSize = 512
	cfg.Index.Order = 4

	db, err := engine.Open(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	steps := [][]string{
		{"init"},
		{"create-table", "people", "id:INTEGER", "name:CHAR", "score:FLOAT"},
		{"insert", "people", "1", "ada", "9.5"},
		{"insert", "people", "2", "bob", "7"},
		{"create-index", "people", "id"},
		{"create-index", "people", "name", "InMemoryOrdered"},
		{"lookup", "people", "id", ">=", "2"},
		{"dump-index", "people", "name"},
		{"tables"},
		{"scan", "people"},
		{"stats"},
		{"checkpoint"},
		{"drop-index", "people", "name"},
	}
	for _, s := range steps {
		require.NoError(t, run(db, cfg, s[0], s[1:]), "%v", s)
	}

	idx, err := db.Index("people", "id")
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	require.ErrorIs(t, run(db, cfg, "insert", []string{"people", "3"}), record.ErrColumnCount)
	require.ErrorIs(t, run(db, cfg, "lookup", []string{"people"}), errUsage)
	require.Error(t, run(db, cfg, "bogus", nil))
	require.Error(t, run(db, cfg, "create-table", []string{"x", "id"}))

	require.NoError(t, run(db, cfg, "drop-table", []string{"people"}))
	assert.Empty(t, db.Tables())
}
