package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infgeoax/memgraph/internal/accessor"
	"github.com/infgeoax/memgraph/internal/telemetry"
	"github.com/infgeoax/memgraph/internal/values"
)

func newStorage(t *testing.T) *accessor.Storage {
	t.Helper()
	return accessor.NewStorage(accessor.Options{WorkerID: 0, Logger: telemetry.Nop()})
}

func TestCollectPrunesOldVersions(t *testing.T) {
	s := newStorage(t)

	w, err := s.Access()
	require.NoError(t, err)
	v, err := w.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	// Three committed updates stack three superseded versions.
	for i := int64(0); i < 3; i++ {
		u, err := s.Access()
		require.NoError(t, err)
		uv, err := u.FindVertex(v.Gid(), true)
		require.NoError(t, err)
		require.NoError(t, u.SetProperty(uv, "n", values.NewInt(i)))
		require.NoError(t, u.Commit())
	}

	c := New(s, time.Hour, telemetry.Nop())
	pruned := c.Collect()
	assert.Equal(t, 3, pruned)

	// The surviving version still answers reads.
	r, err := s.Access()
	require.NoError(t, err)
	defer r.Close()
	got, err := r.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, values.Equal(values.NewInt(2), got.Property("n")))
}

func TestCollectReclaimsRemovedVertex(t *testing.T) {
	s := newStorage(t)

	w, err := s.Access()
	require.NoError(t, err)
	v, err := w.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, w.AddLabel(v, "Gone"))
	require.NoError(t, w.Commit())

	rem, err := s.Access()
	require.NoError(t, err)
	rv, err := rem.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	ok, err := rem.RemoveVertex(rv)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, rem.Commit())

	c := New(s, time.Hour, telemetry.Nop())
	c.Collect()

	// The chain is gone from the map and the label index entry with it.
	assert.Equal(t, 0, s.Vertices().Size())
	r, err := s.Access()
	require.NoError(t, err)
	defer r.Close()
	n, err := r.VerticesCountByLabel("Gone")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCollectKeepsVersionsForActiveReader(t *testing.T) {
	s := newStorage(t)

	w, err := s.Access()
	require.NoError(t, err)
	v, err := w.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, w.SetProperty(v, "n", values.NewInt(1)))
	require.NoError(t, w.Commit())

	reader, err := s.Access()
	require.NoError(t, err)
	defer reader.Close()

	u, err := s.Access()
	require.NoError(t, err)
	uv, err := u.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	require.NoError(t, u.SetProperty(uv, "n", values.NewInt(2)))
	require.NoError(t, u.Commit())

	c := New(s, time.Hour, telemetry.Nop())
	c.Collect()

	// reader predates the update and must still see the old value.
	got, err := reader.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, values.Equal(values.NewInt(1), got.Property("n")))
}

func TestCollectSweepsStalePropIndexEntries(t *testing.T) {
	s := newStorage(t)

	w, err := s.Access()
	require.NoError(t, err)
	v, err := w.InsertVertex(nil)
	require.NoError(t, err)
	require.NoError(t, w.AddLabel(v, "L"))
	require.NoError(t, w.SetProperty(v, "p", values.NewInt(1)))
	require.NoError(t, w.Commit())

	b, err := s.Access()
	require.NoError(t, err)
	require.NoError(t, b.BuildIndex("L", "p"))
	require.NoError(t, b.Commit())

	// Overwrite the value; the old index entry goes stale once the old
	// version is collected.
	u, err := s.Access()
	require.NoError(t, err)
	uv, err := u.FindVertex(v.Gid(), true)
	require.NoError(t, err)
	require.NoError(t, u.SetProperty(uv, "p", values.NewInt(2)))
	require.NoError(t, u.Commit())

	c := New(s, time.Hour, telemetry.Nop())
	c.Collect()

	r, err := s.Access()
	require.NoError(t, err)
	defer r.Close()
	n1, err := r.VerticesCountForValue("L", "p", values.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, 0, n1)
	n2, err := r.VerticesCountForValue("L", "p", values.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, 1, n2)
}

func TestStartStop(t *testing.T) {
	s := newStorage(t)
	c := New(s, 10*time.Millisecond, telemetry.Nop())
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
