package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClock_StartsAtStart(t *testing.T) {
	start := time.Date(2016, 7, 12, 10, 0, 0, 0, time.UTC)
	clock := NewWallClock(start)
	assert.Equal(t, start, clock.Now())
}

func TestWallClock_Advance(t *testing.T) {
	start := time.Date(2016, 7, 12, 10, 0, 0, 0, time.UTC)
	clock := NewWallClock(start)

	got := clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), got)
	assert.Equal(t, got, clock.Now())
}

func TestWallClock_SetNormalizesToUTC(t *testing.T) {
	clock := NewWallClock(time.Time{})
	loc := time.FixedZone("UTC+2", 2*60*60)
	clock.Set(time.Date(2016, 7, 12, 12, 0, 0, 0, loc))

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 10, clock.Now().Hour())
}

func TestWallClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2016, 7, 12, 10, 0, 0, 0, time.UTC)
	clock := NewWallClock(start)
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(goroutines*time.Second), clock.Now())
}

func TestFixedRunID(t *testing.T) {
	gen := NewFixedRunID("run-1")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-1", gen.Generate())

	assert.Equal(t, "test-run", NewFixedRunID("").Generate())
}
