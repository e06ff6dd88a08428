package engine

// AttemptCounter tracks generation attempts per artifact for one subject
// and enforces the maximum.
//
// The counter is incremented immediately before each background generation
// is launched. Once an artifact reaches the maximum it is not dispatched
// again until Reset (manual intervention) or subject deletion.
//
// Not safe for concurrent use: owned by the subject actor.
type AttemptCounter struct {
	max     int
	current map[string]int
}

// NewAttemptCounter creates a counter with the given per-artifact limit.
func NewAttemptCounter(max int) *AttemptCounter {
	return &AttemptCounter{
		max:     max,
		current: make(map[string]int),
	}
}

// Acquire consumes one attempt for the artifact and returns its number
// (1-based). Returns a RetryExhausted RuntimeError if no attempts remain.
func (c *AttemptCounter) Acquire(subjectID, artifactID string) (int, error) {
	if c.current[artifactID] >= c.max {
		return 0, NewRetryExhaustedError(subjectID, artifactID, c.current[artifactID], c.max)
	}
	c.current[artifactID]++
	return c.current[artifactID], nil
}

// Release returns an attempt acquired for a launch that did not happen.
func (c *AttemptCounter) Release(artifactID string) {
	if c.current[artifactID] > 0 {
		c.current[artifactID]--
	}
}

// Exhausted reports whether the artifact has used every attempt.
func (c *AttemptCounter) Exhausted(artifactID string) bool {
	return c.current[artifactID] >= c.max
}

// Current returns the attempts consumed for an artifact.
func (c *AttemptCounter) Current(artifactID string) int {
	return c.current[artifactID]
}

// Max returns the per-artifact limit.
func (c *AttemptCounter) Max() int {
	return c.max
}

// Reset clears the counter for one artifact.
func (c *AttemptCounter) Reset(artifactID string) {
	delete(c.current, artifactID)
}

// Set restores a persisted count.
func (c *AttemptCounter) Set(artifactID string, n int) {
	if n <= 0 {
		delete(c.current, artifactID)
		return
	}
	c.current[artifactID] = n
}

// Snapshot returns a copy of all counts.
func (c *AttemptCounter) Snapshot() map[string]int {
	out := make(map[string]int, len(c.current))
	for k, v := range c.current {
		out[k] = v
	}
	return out
}
