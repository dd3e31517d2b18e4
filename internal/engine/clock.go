package engine

import "sync/atomic"

// Clock stamps every reduction of a machine with a monotonic sequence number.
//
// Sequence numbers order journal records and log lines; they never come from
// wall-clock time. A machine restarted by a new subscription keeps counting
// from where its clock is.
//
// Thread-safety: Clock is safe for concurrent use. In practice only the
// store loop of one machine calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
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
