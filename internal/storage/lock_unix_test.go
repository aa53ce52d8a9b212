//go:build unix

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskManager_DirectoryLock(t *testing.T) {
	root := t.TempDir()
	dm := newTestDM(t, root)

	_, err := Open(root, testPageSize)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, dm.Close())

	dm2, err := Open(root, testPageSize)
	require.NoError(t, err)
	require.NoError(t, dm2.Close())
}
