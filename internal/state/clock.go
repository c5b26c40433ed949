package state

import "sync/atomic"

// Clock is a monotonic logical clock stamping buffered change events.
//
// Every buffered event carries a strictly increasing seq from this clock.
// The seq preserves arrival order through the flush sort (the sort is
// stable, so equal-priority events keep their seq order) and gives the
// journal a deterministic replay order without wall-clock races.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the single-writer mutation discipline means one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used by journal replay to resume from the last recorded position.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
