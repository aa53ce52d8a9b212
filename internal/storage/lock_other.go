//go:build !unix

package storage

import (
	"fmt"
	"os"
)

// Advisory locking is only wired for unix; elsewhere the lock file just
// marks the directory as in use.
func lockDir(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open lock file: %w", err)
	}
	return f, nil
}

func unlockDir(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}
