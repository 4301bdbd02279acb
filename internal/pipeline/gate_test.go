package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameGate_SingleInFlight(t *testing.T) {
	gate := NewFrameGate()

	require.True(t, gate.TryAcquire())
	assert.True(t, gate.Busy())

	// Arrivals while busy are shed
	assert.False(t, gate.TryAcquire())
	assert.False(t, gate.TryAcquire())

	gate.Release()
	assert.False(t, gate.Busy())
	assert.True(t, gate.TryAcquire())

	assert.Equal(t, uint64(4), gate.Submitted())
	assert.Equal(t, uint64(2), gate.Dropped())
}

func TestFrameGate_ConcurrentArrivals(t *testing.T) {
	gate := NewFrameGate()

	const arrivals = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < arrivals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Exactly one concurrent arrival wins; the rest are dropped
	assert.Equal(t, 1, acquired)
	assert.Equal(t, uint64(arrivals), gate.Submitted())
	assert.Equal(t, uint64(arrivals-1), gate.Dropped())
}

func TestFrameGate_ReleaseReopens(t *testing.T) {
	gate := NewFrameGate()

	for i := 0; i < 10; i++ {
		require.True(t, gate.TryAcquire(), "cycle %d", i)
		gate.Release()
	}
	assert.Equal(t, uint64(0), gate.Dropped())
}
