package storage

import "errors"

const (
	OneKB = 1 << 10

	DefaultPageSize = 4 * OneKB
	MinPageSize     = 128

	metaFileName = "disk_meta.json"
	lockFileName = "LOCK"
	metaVersion  = 1
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrFileNotFound   = errors.New("storage: file not found")
	ErrFileExists     = errors.New("storage: file already exists")
	ErrBadPageSize    = errors.New("storage: invalid page size")
	ErrPageOutOfRange = errors.New("storage: page number out of range")
	ErrLocked         = errors.New("storage: data directory is locked by another process")
	ErrClosed         = errors.New("storage: disk manager is closed")
)
