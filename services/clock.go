package services

import "sync/atomic"

// Clock monotonic sequence used to order refetch generations.
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number. Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
