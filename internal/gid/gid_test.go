package gid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack(t *testing.T) {
	g := New(5, 1234)
	assert.Equal(t, 5, g.WorkerID())
	assert.Equal(t, uint64(1234), g.LocalID())
}

func TestGeneratorMonotonic(t *testing.T) {
	gen := NewGenerator(3)
	a := gen.Next()
	b := gen.Next()
	assert.Equal(t, uint64(0), a.LocalID())
	assert.Equal(t, uint64(1), b.LocalID())
	assert.Equal(t, 3, a.WorkerID())
}

func TestGeneratorConcurrentUnique(t *testing.T) {
	gen := NewGenerator(0)
	const n = 128
	out := make([]Gid, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			out[i] = gen.Next()
		}()
	}
	wg.Wait()

	seen := make(map[Gid]struct{}, n)
	for _, g := range out {
		_, dup := seen[g]
		require.False(t, dup, "duplicate gid %s", g)
		seen[g] = struct{}{}
	}
}

func TestNextExplicitBumpsSequence(t *testing.T) {
	gen := NewGenerator(0)
	g := gen.NextExplicit(41)
	assert.Equal(t, uint64(41), g.LocalID())
	assert.Equal(t, uint64(42), gen.HighWatermark())

	next := gen.Next()
	assert.Equal(t, uint64(42), next.LocalID())
}

func TestSetHighWatermarkNeverLowers(t *testing.T) {
	gen := NewGenerator(0)
	gen.SetHighWatermark(10)
	gen.SetHighWatermark(5)
	assert.Equal(t, uint64(10), gen.HighWatermark())
}
