package mvstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/txn"
)

func TestVertexMapInsertFindSize(t *testing.T) {
	e := txn.NewEngine(nil)
	tx, _ := e.Begin()

	var m VertexMap
	list := NewVersionList(gid.New(0, 7), NewVertexRecord(), tx)
	m.Insert(list)

	got, ok := m.Find(gid.New(0, 7))
	require.True(t, ok)
	assert.Same(t, list, got)
	assert.Equal(t, 1, m.Size())

	m.Delete(gid.New(0, 7))
	_, ok = m.Find(gid.New(0, 7))
	assert.False(t, ok)
	assert.Equal(t, 0, m.Size())
}

func TestVertexMapDuplicateGidPanics(t *testing.T) {
	e := txn.NewEngine(nil)
	tx, _ := e.Begin()

	var m VertexMap
	m.Insert(NewVersionList(gid.New(0, 1), NewVertexRecord(), tx))
	assert.Panics(t, func() {
		m.Insert(NewVersionList(gid.New(0, 1), NewVertexRecord(), tx))
	})
}

func TestCountersFetchAdd(t *testing.T) {
	var c Counters
	assert.Equal(t, int64(0), c.Get("hits", 1))
	assert.Equal(t, int64(1), c.Get("hits", 5))
	assert.Equal(t, int64(6), c.Get("hits", 0))

	c.Set("hits", 100)
	assert.Equal(t, int64(100), c.Get("hits", 0))
}

func TestCountersConcurrent(t *testing.T) {
	var c Counters
	const workers, each = 16, 100

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				c.Get("n", 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(workers*each), c.Get("n", 0))
}

func TestVertexRecordLabelOps(t *testing.T) {
	r := NewVertexRecord()
	assert.True(t, r.AddLabel(1))
	assert.False(t, r.AddLabel(1))
	assert.True(t, r.HasLabel(1))
	assert.True(t, r.RemoveLabel(1))
	assert.False(t, r.RemoveLabel(1))
}

func TestRecordCloneIsolation(t *testing.T) {
	r := NewVertexRecord()
	r.AddLabel(1)
	r.OutEdges = append(r.OutEdges, EdgeRef{Edge: gid.New(0, 9)})

	cp := r.Clone()
	cp.AddLabel(2)
	cp.OutEdges = append(cp.OutEdges, EdgeRef{Edge: gid.New(0, 10)})

	assert.False(t, r.HasLabel(2))
	assert.Len(t, r.OutEdges, 1)
}
