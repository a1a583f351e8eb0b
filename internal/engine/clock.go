package engine

import "sync/atomic"

// Clock hands out the seq numbers that order committed actions. Actions
// are read back by (at, seq); seq breaks ties between actions sharing a
// timestamp, in commit order.
//
// One Clock serves every board of an engine and is safe for concurrent
// use.
type Clock struct {
	last atomic.Int64
}

// ResumeClock returns a clock whose first seq follows last, normally the
// highest seq already stored.
func ResumeClock(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next reserves a seq. Concurrent callers never receive the same value.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently reserved seq.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
