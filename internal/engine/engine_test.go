package engine

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
	"github.com/tuannm99/novastore/internal/value"
)

func testConfig(dir string) *internal.Config {
	cfg := internal.DefaultConfig()
	cfg.Storage.Workdir = dir
	cfg.Storage.PageSize = 512
	cfg.BufferPool.Capacity = 8
	cfg.Index.Order = 4
	return cfg
}

func openTestDB(t *testing.T, dir string) *Database {
	t.Helper()
	db, err := Open(testConfig(dir))
	require.NoError(t, err)
	return db
}

func usersSchema() record.Schema {
	return record.Schema{Columns: []record.Column{
		{Name: "id", Kind: value.Integer},
		{Name: "name", Kind: value.Char},
		{Name: "score", Kind: value.Float},
	}}
}

func user(t *testing.T, id int64, name string, score float64) []value.Value {
	t.Helper()
	n, err := value.NewChar(name)
	require.NoError(t, err)
	return []value.Value{value.NewInt(id), n, value.NewFloat(score)}
}

func ids(rows []Row) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values[0].Int())
	}
	return out
}

func sortedIDs(rows []Row) []int64 {
	out := ids(rows)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// seedUsers creates users with ids 1..n.
func seedUsers(t *testing.T, db *Database, n int) *Table {
	t.Helper()
	tbl, err := db.CreateTable("users", usersSchema())
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := tbl.Insert(user(t, int64(i), "u", float64(i)/2))
		require.NoError(t, err)
	}
	return tbl
}

func TestDatabase_CreateInsertReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	tbl := seedUsers(t, db, 10)
	rid, err := tbl.Insert(user(t, 11, "zed", 9.5))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.ErrorIs(t, db.CreateIndex("users", "id", index.BTree), ErrDatabaseClosed)

	db = openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	assert.Equal(t, []string{"users"}, db.Tables())

	tbl, err = db.Table("users")
	require.NoError(t, err)
	got, err := tbl.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, "zed", got[1].Char())

	n := 0
	require.NoError(t, tbl.Scan(func(Row) bool { n++; return true }))
	assert.Equal(t, 11, n)
}

func TestDatabase_CreateIndexAndLookup(t *testing.T) {
	for _, kind := range []index.Kind{index.InMemoryOrdered, index.BTree} {
		t.Run(string(kind), func(t *testing.T) {
			db := openTestDB(t, t.TempDir())
			defer func() { require.NoError(t, db.Close()) }()

			tbl := seedUsers(t, db, 30)
			require.NoError(t, db.CreateIndex("users", "id", kind))
			require.ErrorIs(t, db.CreateIndex("users", "id", kind), catalog.ErrIndexExists)

			idx, err := db.Index("users", "id")
			require.NoError(t, err)
			assert.Equal(t, 30, idx.Len())

			rows, err := tbl.Lookup("id", OpEq, value.NewInt(17))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, 8.5, rows[0].Values[2].Float())

			rows, err = tbl.Lookup("id", OpGt, value.NewInt(27))
			require.NoError(t, err)
			assert.Equal(t, []int64{28, 29, 30}, ids(rows))

			rows, err = tbl.Lookup("id", OpLe, value.NewInt(3))
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3}, sortedIDs(rows))

			rows, err = tbl.LookupRange("id", value.NewInt(10), value.NewInt(14))
			require.NoError(t, err)
			assert.Equal(t, []int64{10, 11, 12, 13}, ids(rows))

			rows, err = tbl.Lookup("id", OpEq, value.NewInt(99))
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestTable_LookupWithoutIndexFallsBack(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 12)

	rows, err := tbl.Lookup("score", OpGe, value.NewFloat(5))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, ids(rows))

	rows, err = tbl.LookupRange("id", value.NewInt(4), value.NewInt(6))
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids(rows))

	_, err = tbl.Lookup("id", OpEq, value.NewFloat(1))
	require.ErrorIs(t, err, value.ErrKindMismatch)
	_, err = tbl.Lookup("nope", OpEq, value.NewInt(1))
	require.ErrorIs(t, err, catalog.ErrColumnNotFound)
}

func TestTable_CharDataWithUnderscores(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()

	tbl, err := db.CreateTable("users", usersSchema())
	require.NoError(t, err)
	for i, name := range []string{"INTEGER_5", "CHAR_zzz", "abc", "zzz"} {
		_, err := tbl.Insert(user(t, int64(i+1), name, 0))
		require.NoError(t, err)
	}
	key := func(s string) value.Value {
		v, err := value.NewChar(s)
		require.NoError(t, err)
		return v
	}

	// Full scan first, then the same lookups through an index.
	for _, indexed := range []bool{false, true} {
		if indexed {
			require.NoError(t, db.CreateIndex("users", "name", index.BTree))
		}

		rows, err := tbl.Lookup("name", OpEq, key("abc"))
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids(rows))

		rows, err = tbl.Lookup("name", OpEq, key("zzz"))
		require.NoError(t, err)
		assert.Equal(t, []int64{4}, ids(rows))

		rows, err = tbl.Lookup("name", OpEq, key("INTEGER_5"))
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids(rows))

		rows, err = tbl.Lookup("name", OpLt, key("a"))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, sortedIDs(rows), "upper-case letters sort before lower-case")
	}
}

func TestTable_InsertRejectsDuplicateKey(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 3)
	require.NoError(t, db.CreateIndex("users", "id", index.BTree))

	_, err := tbl.Insert(user(t, 2, "dup", 0))
	require.ErrorIs(t, err, index.ErrDuplicateKey)

	n := 0
	require.NoError(t, tbl.Scan(func(Row) bool { n++; return true }))
	assert.Equal(t, 3, n, "nothing written for a rejected row")
}

func TestDatabase_CreateIndexRejectsDuplicateRows(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 3)
	_, err := tbl.Insert(user(t, 1, "again", 0))
	require.NoError(t, err)

	require.ErrorIs(t, db.CreateIndex("users", "id", index.BTree), index.ErrDuplicateKey)
	_, err = db.Index("users", "id")
	require.ErrorIs(t, err, catalog.ErrIndexNotFound)
}

func TestTable_DeleteCascadesToIndexes(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 6)
	require.NoError(t, db.CreateIndex("users", "id", index.BTree))

	rows, err := tbl.Lookup("id", OpEq, value.NewInt(4))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rid := rows[0].RID

	require.NoError(t, tbl.Delete(rid))

	idx, err := db.Index("users", "id")
	require.NoError(t, err)
	_, ok, err := idx.EqualTo(value.NewInt(4))
	require.NoError(t, err)
	assert.False(t, ok)

	// The freed slot is reused by the next insert and the index follows.
	newRID, err := tbl.Insert(user(t, 40, "new", 1))
	require.NoError(t, err)
	assert.Equal(t, rid, newRID)

	rows, err = tbl.Lookup("id", OpGe, value.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 5, 6, 40}, ids(rows))

}

func TestIndexScan_PinsOnePageAtATime(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 20)
	require.NoError(t, db.CreateIndex("users", "id", index.BTree))

	idx, err := db.Index("users", "id")
	require.NoError(t, err)
	seq, err := idx.MoreThan(value.NewInt(0), true)
	require.NoError(t, err)

	maxPinned := 0
	n := 0
	require.NoError(t, newIndexScan(tbl.File(), tbl.Schema(), seq).Each(func(Row) bool {
		n++
		maxPinned = max(maxPinned, db.Stats().Pinned)
		return true
	}))
	assert.Equal(t, 20, n)
	assert.Equal(t, 1, maxPinned)
	assert.Equal(t, 0, db.Stats().Pinned, "released at the end")
}

func TestIndexScan_StaleEntry(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 2)

	seq := func(yield func(value.Value, heap.RID) bool) {
		yield(value.NewInt(1), heap.RID{PageNumber: 1, SlotNumber: 3})
	}
	_, err := newIndexScan(tbl.File(), tbl.Schema(), seq).Collect()
	require.ErrorIs(t, err, heap.ErrRecordNotFound)
	assert.Equal(t, 0, db.Stats().Pinned)
}

func TestDatabase_DropIndexAndTable(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	seedUsers(t, db, 4)
	require.NoError(t, db.CreateIndex("users", "id", index.InMemoryOrdered))

	snap := index.PathFor(dir, "users", "id", index.InMemoryOrdered)
	_, err := os.Stat(snap)
	require.NoError(t, err)

	require.NoError(t, db.DropIndex("users", "id"))
	_, err = os.Stat(snap)
	assert.True(t, os.IsNotExist(err))
	require.ErrorIs(t, db.DropIndex("users", "id"), catalog.ErrIndexNotFound)

	require.NoError(t, db.CreateIndex("users", "id", index.BTree))
	require.NoError(t, db.DropTable("users"))
	assert.Empty(t, db.Tables())
	_, err = os.Stat(index.PathFor(dir, "users", "id", index.BTree))
	assert.True(t, os.IsNotExist(err))

	_, err = db.Table("users")
	require.ErrorIs(t, err, catalog.ErrTableNotFound)

	// The name is free again.
	_, err = db.CreateTable("users", usersSchema())
	require.NoError(t, err)
}

func TestDatabase_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	tbl := seedUsers(t, db, 9)
	require.NoError(t, db.CreateIndex("users", "id", index.BTree))
	_, err := tbl.Insert(user(t, 100, "late", 0))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	tbl, err = db.Table("users")
	require.NoError(t, err)

	rows, err := tbl.Lookup("id", OpEq, value.NewInt(100))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "late", rows[0].Values[1].Char())
}

func TestParseOp(t *testing.T) {
	for s, want := range map[string]Op{"=": OpEq, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe} {
		got, err := ParseOp(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, s, got.String())
	}
	_, err := ParseOp("<>")
	require.Error(t, err)
}

func TestDatabase_Checkpoint(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	seedUsers(t, db, 8)

	require.NoError(t, db.Checkpoint())

	// The header page on disk now records both data pages.
	dm := db.Disk()
	buf := make([]byte, dm.PageSize())
	require.NoError(t, dm.ReadPage("users/data", 0, buf))
	hdr, err := heap.DecodeFileHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), hdr.NumPages)

	n, err := dm.PageCount("users/data")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}

func TestDatabase_DropTableWithMissingHeapFile(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	seedUsers(t, db, 2)
	require.NoError(t, db.Close())

	db = openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	require.NoError(t, db.Disk().DestroyFile("users/data"))

	_, err := db.Table("users")
	require.ErrorIs(t, err, storage.ErrFileNotFound)
	require.NoError(t, db.DropTable("users"))
	assert.Empty(t, db.Tables())
}

func TestTable_InsertRollsBackOnIndexFailure(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	defer func() { require.NoError(t, db.Close()) }()
	tbl := seedUsers(t, db, 3)
	require.NoError(t, db.CreateIndex("users", "id", index.BTree))
	require.NoError(t, db.CreateIndex("users", "name", index.InMemoryOrdered))

	// Indexes are maintained in column order: id succeeds, name fails.
	snap := index.PathFor(dir, "users", "name", index.InMemoryOrdered)
	require.NoError(t, os.Remove(snap))
	require.NoError(t, os.MkdirAll(filepath.Join(snap, "x"), 0o755))

	_, err := tbl.Insert(user(t, 9, "nine", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.name")

	idx, err := db.Index("users", "id")
	require.NoError(t, err)
	_, ok, err := idx.EqualTo(value.NewInt(9))
	require.NoError(t, err)
	assert.False(t, ok, "id entry rolled back")

	n := 0
	require.NoError(t, tbl.Scan(func(Row) bool { n++; return true }))
	assert.Equal(t, 3, n, "heap record rolled back")
}
