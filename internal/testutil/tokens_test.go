package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Order(t *testing.T) {
	gen := NewSequenceGenerator("mig")

	assert.Equal(t, "mig-0001", gen.Generate())
	assert.Equal(t, "mig-0002", gen.Generate())
	assert.Equal(t, "mig-0003", gen.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "mig-0001", gen.Generate())
}

func TestSequenceGenerator_Reset(t *testing.T) {
	gen := NewSequenceGenerator("t")
	gen.Generate()
	gen.Generate()
	gen.Reset()
	assert.Equal(t, "t-0001", gen.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("x")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				token := gen.Generate()
				mu.Lock()
				seen[token] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}
