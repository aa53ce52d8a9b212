package bufferpool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReplacerFull   = errors.New("bufferpool: replacer is tracking its maximum number of frames")
	ErrFrameNotPinned = errors.New("bufferpool: frame is not pinned")
)

// Replacer is the eviction-candidate tracker used by BufferPool. It never
// holds page data, only frame ids.
type Replacer interface {
	// Pin marks frameID as in use. Pinning a pinned frame is a no-op.
	Pin(frameID int) error
	// Unpin makes frameID an eviction candidate.
	Unpin(frameID int) error
	// Victim removes and returns the next frame to evict.
	Victim() (frameID int, ok bool)
	// Restore hands back a frame Victim just returned, making it the next
	// victim again.
	Restore(frameID int) error
	// Remove stops tracking frameID whatever its state.
	Remove(frameID int)
	Size() int
	PinnedCount() int
	UnpinnedCount() int
}

const (
	PolicyLRU   = "lru"
	PolicyClock = "clock"
)

// NewReplacer builds the replacer named by policy ("" means lru).
func NewReplacer(policy string, capacity int) (Replacer, error) {
	switch strings.ToLower(policy) {
	case "", PolicyLRU:
		return NewLRUReplacer(capacity), nil
	case PolicyClock:
		return NewClockReplacer(capacity), nil
	default:
		return nil, fmt.Errorf("bufferpool: unknown replacement policy %q", policy)
	}
}
