package engine

import (
	"sync/atomic"
	"time"
)

// TurnClock numbers a subject's turns with a strictly increasing sequence.
//
// Turn numbers order results and persisted transition state without relying
// on wall time. A restored subject resumes from its persisted turn.
type TurnClock struct {
	seq atomic.Int64
}

// NewTurnClock creates a clock whose first Next returns start+1.
func NewTurnClock(start int64) *TurnClock {
	c := &TurnClock{}
	c.seq.Store(start)
	return c
}

// Next advances and returns the turn number.
func (c *TurnClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued turn number.
func (c *TurnClock) Current() int64 {
	return c.seq.Load()
}

// TimeSource supplies wall time for card timestamps and auto-dismiss.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the system clock.
type SystemTime struct{}

// Now returns time.Now in UTC.
func (SystemTime) Now() time.Time { return time.Now().UTC() }
