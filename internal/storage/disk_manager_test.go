package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 256

func newTestDM(t *testing.T, root string) *DiskManager {
	t.Helper()
	dm, err := Open(root, testPageSize)
	require.NoError(t, err)
	return dm
}

func filled(b byte) []byte {
	return bytes.Repeat([]byte{b}, testPageSize)
}

func TestDiskManager_AllocateReadWrite(t *testing.T) {
	dm := newTestDM(t, t.TempDir())
	defer func() { require.NoError(t, dm.Close()) }()

	require.NoError(t, dm.CreateFile("users/data"))
	assert.True(t, dm.FileExists("users/data"))

	for i := range 3 {
		p, err := dm.AllocatePage("users/data")
		require.NoError(t, err)
		assert.Equal(t, uint32(i), p)
	}
	n, err := dm.PageCount("users/data")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)

	// fresh pages are zeroed
	buf := make([]byte, testPageSize)
	require.NoError(t, dm.ReadPage("users/data", 2, buf))
	assert.Equal(t, make([]byte, testPageSize), buf)

	require.NoError(t, dm.WritePage("users/data", 1, filled(0xAB)))
	require.NoError(t, dm.ReadPage("users/data", 1, buf))
	assert.Equal(t, filled(0xAB), buf)
}

func TestDiskManager_Errors(t *testing.T) {
	dm := newTestDM(t, t.TempDir())
	defer func() { require.NoError(t, dm.Close()) }()

	buf := make([]byte, testPageSize)
	require.ErrorIs(t, dm.ReadPage("nope", 0, buf), ErrFileNotFound)
	_, err := dm.AllocatePage("nope")
	require.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, dm.CreateFile("t"))
	require.ErrorIs(t, dm.CreateFile("t"), ErrFileExists)

	require.ErrorIs(t, dm.ReadPage("t", 0, buf), ErrPageOutOfRange)
	require.ErrorIs(t, dm.WritePage("t", 0, buf), ErrPageOutOfRange)
	require.ErrorIs(t, dm.ReadPage("t", 0, make([]byte, 10)), ErrBadPageSize)

	_, err = Open(t.TempDir(), 64)
	require.ErrorIs(t, err, ErrBadPageSize)
}

func TestDiskManager_PersistsAcrossRestart(t *testing.T) {
	root := t.TempDir()

	dm := newTestDM(t, root)
	require.NoError(t, dm.CreateFile("a"))
	for range 4 {
		_, err := dm.AllocatePage("a")
		require.NoError(t, err)
	}
	require.NoError(t, dm.WritePage("a", 3, filled(7)))
	require.NoError(t, dm.Close())

	raw, err := os.ReadFile(filepath.Join(root, metaFileName))
	require.NoError(t, err)
	var m diskMeta
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, uint32(4), m.Files["a"].PageCount)
	assert.Equal(t, testPageSize, m.PageSize)

	dm = newTestDM(t, root)
	defer func() { require.NoError(t, dm.Close()) }()

	n, err := dm.PageCount("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)

	p, err := dm.AllocatePage("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), p, "numbering continues after restart")

	buf := make([]byte, testPageSize)
	require.NoError(t, dm.ReadPage("a", 3, buf))
	assert.Equal(t, filled(7), buf)
}

func TestDiskManager_PageSizeMismatch(t *testing.T) {
	root := t.TempDir()
	dm := newTestDM(t, root)
	require.NoError(t, dm.CreateFile("a"))
	require.NoError(t, dm.Close())

	_, err := Open(root, testPageSize*2)
	require.ErrorIs(t, err, ErrBadPageSize)
}

func TestDiskManager_DestroyFile(t *testing.T) {
	root := t.TempDir()
	dm := newTestDM(t, root)
	defer func() { require.NoError(t, dm.Close()) }()

	require.NoError(t, dm.CreateFile("x/data"))
	_, err := dm.AllocatePage("x/data")
	require.NoError(t, err)

	require.NoError(t, dm.DestroyFile("x/data"))
	assert.False(t, dm.FileExists("x/data"))
	_, err = os.Stat(filepath.Join(root, "x", "data"))
	assert.True(t, os.IsNotExist(err))

	require.ErrorIs(t, dm.DestroyFile("x/data"), ErrFileNotFound)
	require.NoError(t, dm.CreateFile("x/data"), "name can be reused")
}

func TestDiskManager_CloseTwice(t *testing.T) {
	dm := newTestDM(t, t.TempDir())
	require.NoError(t, dm.Close())
	require.NoError(t, dm.Close())
	require.ErrorIs(t, dm.CreateFile("a"), ErrClosed)
}

// crash drops the directory lock without writing anything, as a killed
// process would.
func crash(t *testing.T, dm *DiskManager) {
	t.Helper()
	require.NoError(t, unlockDir(dm.lock))
	dm.lock = nil
}

func TestDiskManager_FilesKnownAfterUncleanShutdown(t *testing.T) {
	root := t.TempDir()
	dm := newTestDM(t, root)
	require.NoError(t, dm.CreateFile("users/data"))
	require.NoError(t, dm.CreateFile("gone/data"))
	_, err := dm.AllocatePage("users/data")
	require.NoError(t, err)
	crash(t, dm)

	dm = newTestDM(t, root)
	assert.Equal(t, []string{"gone/data", "users/data"}, dm.Files())
	n, err := dm.PageCount("users/data")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n, "page count recovered from the file length")

	require.NoError(t, dm.DestroyFile("gone/data"))
	crash(t, dm)

	dm = newTestDM(t, root)
	defer func() { require.NoError(t, dm.Close()) }()
	assert.Equal(t, []string{"users/data"}, dm.Files())
}

func TestDiskManager_SaveMetaAndSync(t *testing.T) {
	root := t.TempDir()
	dm := newTestDM(t, root)
	defer func() { require.NoError(t, dm.Close()) }()

	require.NoError(t, dm.CreateFile("t"))
	for range 2 {
		_, err := dm.AllocatePage("t")
		require.NoError(t, err)
	}
	require.NoError(t, dm.Sync("t"))
	require.NoError(t, dm.SaveMeta())

	data, err := os.ReadFile(filepath.Join(root, metaFileName))
	require.NoError(t, err)
	var m diskMeta
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, uint32(2), m.Files["t"].PageCount)

	require.ErrorIs(t, dm.Sync("missing"), ErrFileNotFound)
}
