package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic time source for tests. Successive
// calls to Next return timestamps one minute apart, so records built from it
// get distinct natural keys and stable month shards.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewClock creates a clock starting at the given instant. The zero start
// defaults to 2024-01-01T00:00:00Z.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Clock{start: start, step: time.Minute}
}

// Next returns the next timestamp in the sequence.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Reset rewinds the clock so the same scenario replays with identical
// timestamps.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
