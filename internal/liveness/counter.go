package liveness

import "sync/atomic"

// Counter is the number of ticks since the last inbound request.
// All methods are safe for concurrent use.
type Counter struct {
	ticks atomic.Int64
}

// NewCounter returns a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Advance adds one tick unless the counter is already above limit.
// The comparison and the increment are a single atomic step, so a
// concurrent Reset is either seen before the check or applied after the
// increment.
//
// Returns the new value and true, or the unchanged value and false.
func (c *Counter) Advance(limit int64) (int64, bool) {
	for {
		cur := c.ticks.Load()
		if cur > limit {
			return cur, false
		}
		if c.ticks.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

// Reset sets the counter back to zero.
func (c *Counter) Reset() {
	c.ticks.Store(0)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.ticks.Load()
}
