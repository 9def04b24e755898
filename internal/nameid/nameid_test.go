package nameid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameToIdIdempotent(t *testing.T) {
	m := New()
	id1 := m.NameToId("Person")
	id2 := m.NameToId("Person")
	assert.Equal(t, id1, id2)

	name, ok := m.IdToName(id1)
	require.True(t, ok)
	assert.Equal(t, "Person", name)
}

func TestDistinctNamesGetDistinctIds(t *testing.T) {
	m := New()
	a := m.NameToId("A")
	b := m.NameToId("B")
	assert.NotEqual(t, a, b)
}

func TestConcurrentNameToIdNoDuplicates(t *testing.T) {
	m := New()
	const workers = 64
	ids := make([]Id, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			ids[i] = m.NameToId("shared")
		}()
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, ids[0], ids[i])
	}

	name, ok := m.IdToName(ids[0])
	require.True(t, ok)
	assert.Equal(t, "shared", name)
}

func TestLookupMissing(t *testing.T) {
	m := New()
	_, ok := m.Lookup("nope")
	assert.False(t, ok)
}
