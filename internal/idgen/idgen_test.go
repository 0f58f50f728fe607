package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobctl/jobmaster/internal/clock"
)

func TestNextIsMonotonic(t *testing.T) {
	g := New(clock.Real{})
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestNextIsUniqueUnderConcurrency(t *testing.T) {
	g := New(clock.Real{})
	const n = 200
	ids := make([]int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = g.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}
