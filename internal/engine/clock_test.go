package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTurnClock_Start(t *testing.T) {
	assert.Equal(t, int64(0), NewTurnClock(0).Current())

	c := NewTurnClock(41)
	assert.Equal(t, int64(41), c.Current(), "restored clock resumes at the persisted turn")
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current(), "current does not advance")
}

func TestTurnClock_ThreadSafe(t *testing.T) {
	c := NewTurnClock(0)
	const goroutines, calls = 50, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestSystemTime(t *testing.T) {
	now := SystemTime{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}
