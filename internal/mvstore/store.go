package mvstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/infgeoax/memgraph/internal/gid"
)

// VertexList and EdgeList name the two version-chain instantiations the
// rest of the storage works with.
type (
	VertexList = VersionList[*VertexRecord]
	EdgeList   = VersionList[*EdgeRecord]
)

// VertexMap is the lock-free Gid -> vertex chain map. Double insertion of
// the same gid is an invariant violation: ids are assigned monotonically
// by a single generator, so a collision means corrupted state.
type VertexMap struct {
	m    sync.Map
	size int64 // atomic
}

// Insert publishes vl under its gid. It panics on gid collision.
func (m *VertexMap) Insert(vl *VertexList) {
	if _, loaded := m.m.LoadOrStore(vl.Gid(), vl); loaded {
		panic(fmt.Sprintf("mvstore: duplicate vertex gid %s", vl.Gid()))
	}
	atomic.AddInt64(&m.size, 1)
}

// Find returns the chain for g, if present.
func (m *VertexMap) Find(g gid.Gid) (*VertexList, bool) {
	v, ok := m.m.Load(g)
	if !ok {
		return nil, false
	}
	return v.(*VertexList), true
}

// Delete unlinks g from the map. Only the collector calls this, after the
// chain is fully pruned.
func (m *VertexMap) Delete(g gid.Gid) {
	if _, ok := m.m.LoadAndDelete(g); ok {
		atomic.AddInt64(&m.size, -1)
	}
}

// Size returns the number of chains currently published.
func (m *VertexMap) Size() int {
	return int(atomic.LoadInt64(&m.size))
}

// Range calls fn for every chain until fn returns false.
func (m *VertexMap) Range(fn func(*VertexList) bool) {
	m.m.Range(func(_, v any) bool {
		return fn(v.(*VertexList))
	})
}

// EdgeMap is the lock-free Gid -> edge chain map.
type EdgeMap struct {
	m    sync.Map
	size int64 // atomic
}

// Insert publishes vl under its gid. It panics on gid collision.
func (m *EdgeMap) Insert(vl *EdgeList) {
	if _, loaded := m.m.LoadOrStore(vl.Gid(), vl); loaded {
		panic(fmt.Sprintf("mvstore: duplicate edge gid %s", vl.Gid()))
	}
	atomic.AddInt64(&m.size, 1)
}

// Find returns the chain for g, if present.
func (m *EdgeMap) Find(g gid.Gid) (*EdgeList, bool) {
	v, ok := m.m.Load(g)
	if !ok {
		return nil, false
	}
	return v.(*EdgeList), true
}

// Delete unlinks g from the map.
func (m *EdgeMap) Delete(g gid.Gid) {
	if _, ok := m.m.LoadAndDelete(g); ok {
		atomic.AddInt64(&m.size, -1)
	}
}

// Size returns the number of chains currently published.
func (m *EdgeMap) Size() int {
	return int(atomic.LoadInt64(&m.size))
}

// Range calls fn for every chain until fn returns false.
func (m *EdgeMap) Range(fn func(*EdgeList) bool) {
	m.m.Range(func(_, v any) bool {
		return fn(v.(*EdgeList))
	})
}

// Counters is the named atomic counter table behind the accessor's
// Counter operation. Counters are non-transactional: a fetch-add is
// immediately visible to every transaction and survives restarts through
// the WAL's counter deltas.
type Counters struct {
	m sync.Map // string -> *int64
}

func (c *Counters) cell(name string) *int64 {
	if v, ok := c.m.Load(name); ok {
		return v.(*int64)
	}
	v, _ := c.m.LoadOrStore(name, new(int64))
	return v.(*int64)
}

// Get atomically adds delta to the named counter and returns the value
// before the addition.
func (c *Counters) Get(name string, delta int64) int64 {
	return atomic.AddInt64(c.cell(name), delta) - delta
}

// Set forces the named counter to value. Recovery uses this when replaying
// counter deltas.
func (c *Counters) Set(name string, value int64) {
	atomic.StoreInt64(c.cell(name), value)
}

// ForEach calls fn for every counter with its current value.
func (c *Counters) ForEach(fn func(name string, value int64)) {
	c.m.Range(func(k, v any) bool {
		fn(k.(string), atomic.LoadInt64(v.(*int64)))
		return true
	})
}
