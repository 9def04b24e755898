package accessor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/telemetry"
	"github.com/infgeoax/memgraph/internal/values"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return NewStorage(Options{WorkerID: 0, Logger: telemetry.Nop()})
}

func mustAccess(t *testing.T, s *Storage) *Accessor {
	t.Helper()
	acc, err := s.Access()
	require.NoError(t, err)
	return acc
}

func TestInsertCommitRead(t *testing.T) {
	s := newTestStorage(t)

	t1 := mustAccess(t, s)
	g := gid.New(0, 1)
	v, err := t1.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, t1.AddLabel(v, "A"))
	require.NoError(t, t1.SetProperty(v, "x", values.NewInt(42)))
	require.NoError(t, t1.Commit())

	t2 := mustAccess(t, s)
	defer t2.Close()
	got, err := t2.FindVertex(g, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"A"}, got.Labels())
	assert.True(t, values.Equal(values.NewInt(42), got.Property("x")))
}

func TestWriteWriteConflict(t *testing.T) {
	s := newTestStorage(t)

	setup := mustAccess(t, s)
	g := gid.New(0, 1)
	_, err := setup.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	t1 := mustAccess(t, s)
	t2 := mustAccess(t, s)
	defer t1.Close()
	defer t2.Close()

	v1, err := t1.FindVertex(g, true)
	require.NoError(t, err)
	v2, err := t2.FindVertex(g, true)
	require.NoError(t, err)

	err1 := t1.SetProperty(v1, "p", values.NewInt(1))
	err2 := t2.SetProperty(v2, "p", values.NewInt(2))

	// Exactly one write wins; the loser gets a serialization error and
	// must abort.
	if err1 == nil {
		assert.ErrorIs(t, err2, mvstore.ErrSerialization)
		require.NoError(t, t1.Commit())
		require.NoError(t, t2.Abort())
	} else {
		assert.ErrorIs(t, err1, mvstore.ErrSerialization)
		require.NoError(t, err2)
		require.NoError(t, t2.Commit())
		require.NoError(t, t1.Abort())
	}
}

func TestSnapshotIsolationAcrossTransactions(t *testing.T) {
	s := newTestStorage(t)

	t1 := mustAccess(t, s)
	defer t1.Close()

	t2 := mustAccess(t, s)
	g := gid.New(0, 2)
	_, err := t2.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, t2.Commit())

	// t1 began before t2 committed: gid 2 is invisible to it.
	it, err := t1.Vertices()
	require.NoError(t, err)
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		assert.NotEqual(t, g, v.Gid())
	}

	t3 := mustAccess(t, s)
	defer t3.Close()
	found, err := t3.FindVertex(g, true)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestRemoveVertexRefusedWithIncidentEdge(t *testing.T) {
	s := newTestStorage(t)

	acc := mustAccess(t, s)
	a, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	b, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	_, err = acc.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)

	ok, err := acc.RemoveVertex(a)
	require.NoError(t, err)
	assert.False(t, ok)

	// Detach removes edges first, then the vertex.
	require.NoError(t, acc.DetachRemoveVertex(a))
	require.NoError(t, acc.AdvanceCommand())

	gone, err := acc.FindVertex(a.Gid(), true)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// The other endpoint lost its adjacency entry.
	bb, err := acc.FindVertex(b.Gid(), true)
	require.NoError(t, err)
	require.NotNil(t, bb)
	assert.Empty(t, bb.InEdges())
	require.NoError(t, acc.Commit())
}

func TestEdgeTraversal(t *testing.T) {
	s := newTestStorage(t)

	acc := mustAccess(t, s)
	a, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	b, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	e, err := acc.InsertEdge(a, b, "KNOWS", nil)
	require.NoError(t, err)
	require.NoError(t, acc.SetEdgeProperty(e, "since", values.NewInt(2020)))
	require.NoError(t, acc.Commit())

	reader := mustAccess(t, s)
	defer reader.Close()

	av, err := reader.FindVertex(a.Gid(), true)
	require.NoError(t, err)
	out := av.OutEdges()
	require.Len(t, out, 1)
	assert.Equal(t, b.Gid(), out[0].Other)

	ev, err := reader.FindEdge(out[0].Edge, true)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "KNOWS", ev.EdgeType())
	assert.Equal(t, a.Gid(), ev.From())
	assert.Equal(t, b.Gid(), ev.To())
	assert.True(t, values.Equal(values.NewInt(2020), ev.Property("since")))
}

func TestAbortHidesWrites(t *testing.T) {
	s := newTestStorage(t)

	t1 := mustAccess(t, s)
	g := gid.New(0, 5)
	_, err := t1.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, t1.Abort())

	t2 := mustAccess(t, s)
	defer t2.Close()
	v, err := t2.FindVertex(g, true)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAccessorFinishedChecks(t *testing.T) {
	s := newTestStorage(t)
	acc := mustAccess(t, s)
	require.NoError(t, acc.Commit())

	_, err := acc.InsertVertex(nil)
	assert.ErrorIs(t, err, ErrFinished)
	assert.ErrorIs(t, acc.Commit(), ErrFinished)
	assert.ErrorIs(t, acc.AdvanceCommand(), ErrFinished)
}

func TestCloseAbortsAbandonedAccessor(t *testing.T) {
	s := newTestStorage(t)
	acc := mustAccess(t, s)
	g := gid.New(0, 9)
	_, err := acc.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, acc.Close())

	reader := mustAccess(t, s)
	defer reader.Close()
	v, err := reader.FindVertex(g, true)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFindDeletedByOwnTransaction(t *testing.T) {
	s := newTestStorage(t)

	setup := mustAccess(t, s)
	g := gid.New(0, 3)
	_, err := setup.InsertVertex(&g)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	acc := mustAccess(t, s)
	defer acc.Close()
	v, err := acc.FindVertex(g, true)
	require.NoError(t, err)
	ok, err := acc.RemoveVertex(v)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, acc.AdvanceCommand())

	_, err = acc.FindVertex(g, true)
	assert.ErrorIs(t, err, mvstore.ErrRecordDeleted)

	// The begin-time view still resolves it.
	old, err := acc.FindVertex(g, false)
	require.NoError(t, err)
	assert.NotNil(t, old)
}

func TestCounters(t *testing.T) {
	s := newTestStorage(t)
	acc := mustAccess(t, s)
	defer acc.Close()

	prev, err := acc.Counter("ids", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)

	prev, err = acc.Counter("ids", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), prev)
}

func TestBuildIndexAndLookups(t *testing.T) {
	s := newTestStorage(t)

	w := mustAccess(t, s)
	for i := int64(0); i < 5; i++ {
		v, err := w.InsertVertex(nil)
		require.NoError(t, err)
		require.NoError(t, w.AddLabel(v, "Person"))
		require.NoError(t, w.SetProperty(v, "age", values.NewInt(20+i)))
	}
	require.NoError(t, w.Commit())

	builder := mustAccess(t, s)
	require.NoError(t, builder.BuildIndex("Person", "age"))

	info, err := builder.IndexInfo()
	require.NoError(t, err)
	assert.Equal(t, []string{"Person(age)"}, info)

	assert.ErrorIs(t, builder.BuildIndex("Person", "age"), index.ErrIndexExists)

	count, err := builder.VerticesCountByLabelProperty("Person", "age")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	count, err = builder.VerticesCountForValue("Person", "age", values.NewInt(22))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = builder.VerticesCountInRange("Person", "age",
		&index.Bound{Value: values.NewInt(21), Inclusive: true},
		&index.Bound{Value: values.NewInt(23), Inclusive: false})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	it, err := builder.VerticesForValue("Person", "age", values.NewInt(24))
	require.NoError(t, err)
	v, ok := it.Next()
	require.True(t, ok)
	assert.True(t, values.Equal(values.NewInt(24), v.Property("age")))
	_, ok = it.Next()
	assert.False(t, ok)

	require.NoError(t, builder.Commit())
}

func TestBuildIndexUnderConcurrentWriter(t *testing.T) {
	s := newTestStorage(t)

	seed := mustAccess(t, s)
	v, err := seed.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, seed.AddLabel(v, "L"))
	require.NoError(t, seed.SetProperty(v, "p", values.NewInt(1)))
	require.NoError(t, seed.Commit())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := mustAccess(t, s)
		nv, err := w.InsertVertex(nil)
		if err != nil {
			return
		}
		_ = w.AddLabel(nv, "L")
		_ = w.SetProperty(nv, "p", values.NewInt(1))
		_ = w.Commit()
	}()

	builder := mustAccess(t, s)
	require.NoError(t, builder.BuildIndex("L", "p"))
	require.NoError(t, builder.Commit())
	wg.Wait()

	check := mustAccess(t, s)
	defer check.Close()
	count, err := check.VerticesCountForValue("L", "p", values.NewInt(1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	// Every committed vertex with the label and value is reachable via
	// the index.
	it, err := check.VerticesForValue("L", "p", values.NewInt(1))
	require.NoError(t, err)
	found := 0
	for _, ok := it.Next(); ok; _, ok = it.Next() {
		found++
	}
	assert.Equal(t, 2, found)
}

func TestVerticesByLabel(t *testing.T) {
	s := newTestStorage(t)

	acc := mustAccess(t, s)
	a, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, acc.AddLabel(a, "A"))
	b, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, acc.AddLabel(b, "B"))
	require.NoError(t, acc.Commit())

	reader := mustAccess(t, s)
	defer reader.Close()
	it, err := reader.VerticesByLabel("A")
	require.NoError(t, err)
	v, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, a.Gid(), v.Gid())
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestRemovedLabelInvisibleThroughIndexScan(t *testing.T) {
	s := newTestStorage(t)

	acc := mustAccess(t, s)
	v, err := acc.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, acc.AddLabel(v, "Tmp"))
	require.NoError(t, acc.Commit())

	rem := mustAccess(t, s)
	rv, err := rem.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	require.NoError(t, rem.RemoveLabel(rv, "Tmp"))
	require.NoError(t, rem.Commit())

	// The stale label-index entry is filtered by the membership re-check.
	reader := mustAccess(t, s)
	defer reader.Close()
	it, err := reader.VerticesByLabel("Tmp")
	require.NoError(t, err)
	_, ok := it.Next()
	assert.False(t, ok)
}

func TestDropIndex(t *testing.T) {
	s := newTestStorage(t)
	acc := mustAccess(t, s)
	require.NoError(t, acc.BuildIndex("L", "p"))

	dropped, err := acc.DropIndex("L", "p")
	require.NoError(t, err)
	assert.True(t, dropped)

	info, err := acc.IndexInfo()
	require.NoError(t, err)
	assert.Empty(t, info)

	// Dropped key can be rebuilt.
	assert.NoError(t, acc.BuildIndex("L", "p"))
	require.NoError(t, acc.Commit())
}

func TestRemoteOpsUnimplemented(t *testing.T) {
	var ops RemoteOps = UnimplementedRemoteOps{}
	assert.ErrorIs(t, ops.RemoveVertex(1, gid.New(1, 0)), ErrNotYetImplemented)
	assert.ErrorIs(t, ops.RemoveEdge(1, gid.New(1, 0)), ErrNotYetImplemented)
	assert.ErrorIs(t, ops.Connect(1, gid.New(1, 0), gid.New(1, 1), "E"), ErrNotYetImplemented)
}
