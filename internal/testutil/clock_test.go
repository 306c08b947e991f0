package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Current())
}

func TestDeterministicClock_NowIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock()

	// First call returns Epoch+1
	assert.Equal(t, Epoch+1, clock.Now())
	assert.Equal(t, Epoch+1, clock.Current())

	assert.Equal(t, Epoch+2, clock.Now())
	assert.Equal(t, Epoch+3, clock.Now())
	assert.Equal(t, Epoch+3, clock.Current())
}

func TestDeterministicClock_At(t *testing.T) {
	clock := NewDeterministicClockAt(100)
	assert.Equal(t, int64(101), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Now()
	clock.Now()
	clock.Now()
	assert.Equal(t, Epoch+3, clock.Current())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Current())
	assert.Equal(t, Epoch+1, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}

	wg.Wait()

	allValues := make(map[int64]bool)
	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < callsPerGoroutine; j++ {
			val := results[i][j]
			require.False(t, allValues[val], "duplicate value %d", val)
			allValues[val] = true
		}
	}

	// Every second from Epoch+1 to Epoch+total is handed out exactly once
	expectedTotal := numGoroutines * callsPerGoroutine
	assert.Len(t, allValues, expectedTotal)
	for i := int64(1); i <= int64(expectedTotal); i++ {
		assert.True(t, allValues[Epoch+i], "missing value %d", Epoch+i)
	}
}

func TestDeterministicClock_Deterministic(t *testing.T) {
	clock1 := NewDeterministicClock()
	clock2 := NewDeterministicClock()

	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.Now(), clock2.Now())
	}
}
