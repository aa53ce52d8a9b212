package bufferpool

import "fmt"

// ClockReplacer implements CLOCK (second-chance) replacement over frame
// ids [0..capacity). An unpinned frame gets its reference bit set and is
// skipped once by the hand before it can be chosen.
type ClockReplacer struct {
	ref       []bool
	evictable []bool
	present   []bool
	hand      int
	pinned    int
	unpinned  int
}

var _ Replacer = (*ClockReplacer)(nil)

func NewClockReplacer(capacity int) *ClockReplacer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ClockReplacer{
		ref:       make([]bool, capacity),
		evictable: make([]bool, capacity),
		present:   make([]bool, capacity),
	}
}

func (c *ClockReplacer) Capacity() int { return len(c.ref) }

func (c *ClockReplacer) inRange(id int) bool { return id >= 0 && id < len(c.ref) }

func (c *ClockReplacer) Pin(frameID int) error {
	if !c.inRange(frameID) {
		return fmt.Errorf("%w: frame %d outside [0,%d)", ErrReplacerFull, frameID, len(c.ref))
	}
	if c.present[frameID] {
		if c.evictable[frameID] {
			c.evictable[frameID] = false
			c.unpinned--
			c.pinned++
		}
		c.ref[frameID] = true
		return nil
	}
	c.present[frameID] = true
	c.ref[frameID] = true
	c.pinned++
	return nil
}

func (c *ClockReplacer) Unpin(frameID int) error {
	if !c.inRange(frameID) || !c.present[frameID] || c.evictable[frameID] {
		return fmt.Errorf("%w: frame %d", ErrFrameNotPinned, frameID)
	}
	c.evictable[frameID] = true
	c.ref[frameID] = true
	c.pinned--
	c.unpinned++
	return nil
}

// Victim sweeps at most twice around the clock.
func (c *ClockReplacer) Victim() (int, bool) {
	n := len(c.ref)
	if c.unpinned == 0 {
		return -1, false
	}
	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		if !c.present[idx] || !c.evictable[idx] {
			continue
		}
		if c.ref[idx] {
			c.ref[idx] = false
			continue
		}
		c.present[idx] = false
		c.evictable[idx] = false
		c.unpinned--
		return idx, true
	}
	return -1, false
}

// Restore re-adds frameID with a clear reference bit and moves the hand
// back onto it.
func (c *ClockReplacer) Restore(frameID int) error {
	if !c.inRange(frameID) {
		return fmt.Errorf("%w: frame %d outside [0,%d)", ErrReplacerFull, frameID, len(c.ref))
	}
	if c.present[frameID] {
		return fmt.Errorf("bufferpool: restore of tracked frame %d", frameID)
	}
	c.present[frameID] = true
	c.evictable[frameID] = true
	c.ref[frameID] = false
	c.unpinned++
	c.hand = frameID
	return nil
}

func (c *ClockReplacer) Remove(frameID int) {
	if !c.inRange(frameID) || !c.present[frameID] {
		return
	}
	if c.evictable[frameID] {
		c.unpinned--
	} else {
		c.pinned--
	}
	c.present[frameID] = false
	c.evictable[frameID] = false
	c.ref[frameID] = false
}

func (c *ClockReplacer) Size() int          { return c.pinned + c.unpinned }
func (c *ClockReplacer) PinnedCount() int   { return c.pinned }
func (c *ClockReplacer) UnpinnedCount() int { return c.unpinned }
