package engine

import "sync/atomic"

// Clock is a monotonic logical clock for call ordering.
//
// Calls and receipts are stamped with strictly increasing seq numbers, so
// replay produces the same order and the same content-addressed IDs.
//
// Clock is safe for concurrent use, although the engine only advances it
// while holding its apply lock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvanceTo moves the clock forward to seq. It never moves backwards.
func (c *Clock) AdvanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
