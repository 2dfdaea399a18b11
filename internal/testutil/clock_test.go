package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock(t *testing.T) {
	c := NewManualClock(t0)
	assert.Equal(t, t0, c.Now())

	c.Advance(5 * time.Second)
	assert.Equal(t, t0.Add(5*time.Second), c.Now())

	c.Set(t0)
	assert.Equal(t, t0, c.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	c := NewManualClock(t0)
	const goroutines = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, t0.Add(goroutines*time.Millisecond), c.Now())
}
