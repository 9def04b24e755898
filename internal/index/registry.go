package index

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/infgeoax/memgraph/internal/nameid"
	"github.com/infgeoax/memgraph/internal/txn"
)

// ErrIndexExists is returned when BuildIndex targets an already existing
// (label, property) pair.
var ErrIndexExists = errors.New("index: index already exists")

// Key identifies one (label, property) index.
type Key struct {
	Label    nameid.Id
	Property nameid.Id
}

// lookupCacheSize bounds the hot (label, property) -> container cache in
// front of the registry map.
const lookupCacheSize = 128

// Registry owns every label-property index plus the "building" transaction
// set the online build protocol uses: an index build consults IsBuilder to
// know which active transactions are index builders (and therefore must
// not be waited on), and readers skip indexes that are not ready yet.
type Registry struct {
	mu      sync.RWMutex
	indexes map[Key]*PropIndex
	retired map[Key]retiredIndex

	builders sync.Map // txn.TxID -> struct{}

	cache *lru.Cache[Key, *PropIndex]
}

type retiredIndex struct {
	idx *PropIndex
	// retiredBefore is the first transaction id that can no longer observe
	// the index. Once the oldest possible reader passes it, the retired
	// container is reclaimable.
	retiredBefore txn.TxID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	cache, _ := lru.New[Key, *PropIndex](lookupCacheSize)
	return &Registry{
		indexes: make(map[Key]*PropIndex),
		retired: make(map[Key]retiredIndex),
		cache:   cache,
	}
}

// Create atomically installs a fresh, not-yet-ready index for key. It
// fails with ErrIndexExists when one is already installed.
func (r *Registry) Create(key Key) (*PropIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indexes[key]; ok {
		return nil, ErrIndexExists
	}
	idx := NewPropIndex()
	r.indexes[key] = idx
	r.cache.Remove(key)
	return idx, nil
}

// Get returns the index for key regardless of build state. The write path
// uses this: writers must populate an index from the moment it is
// installed, ready or not.
func (r *Registry) Get(key Key) (*PropIndex, bool) {
	if idx, ok := r.cache.Get(key); ok {
		if !idx.Retired() {
			return idx, true
		}
		r.cache.Remove(key)
	}
	r.mu.RLock()
	idx, ok := r.indexes[key]
	r.mu.RUnlock()
	if ok {
		r.cache.Add(key, idx)
	}
	return idx, ok
}

// GetReady returns the index for key only when its online build finished.
// The read path uses this.
func (r *Registry) GetReady(key Key) (*PropIndex, bool) {
	idx, ok := r.Get(key)
	if !ok || !idx.Ready() {
		return nil, false
	}
	return idx, true
}

// Drop retires the index for key. In-flight readers that already resolved
// the container keep scanning it; new lookups miss. The container itself
// is reclaimed by Reclaim once no transaction that could have observed it
// as live remains active.
func (r *Registry) Drop(key Key, lastIssued txn.TxID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[key]
	if !ok {
		return false
	}
	delete(r.indexes, key)
	idx.markRetired()
	r.retired[key] = retiredIndex{idx: idx, retiredBefore: lastIssued + 1}
	r.cache.Remove(key)
	return true
}

// Reclaim frees retired containers no possible reader can still hold:
// those whose retirement boundary is at or below the oldest id in the GC
// snapshot. It returns the number reclaimed.
func (r *Registry) Reclaim(gcSnapshot txn.Snapshot) int {
	oldest := gcSnapshot.Oldest()
	if oldest == txn.NoTx {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, ret := range r.retired {
		if ret.retiredBefore <= oldest {
			delete(r.retired, key)
			n++
		}
	}
	return n
}

// ForEach calls fn for every installed index, ready or not.
func (r *Registry) ForEach(fn func(Key, *PropIndex) bool) {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.indexes))
	idxs := make([]*PropIndex, 0, len(r.indexes))
	for k, v := range r.indexes {
		keys = append(keys, k)
		idxs = append(idxs, v)
	}
	r.mu.RUnlock()
	for i := range keys {
		if !fn(keys[i], idxs[i]) {
			return
		}
	}
}

// Keys returns every installed index key.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.indexes))
	for k := range r.indexes {
		keys = append(keys, k)
	}
	return keys
}

// RegisterBuilder records id as an index-building transaction. Other
// builders starting concurrently skip waiting for it.
func (r *Registry) RegisterBuilder(id txn.TxID) {
	r.builders.Store(id, struct{}{})
}

// UnregisterBuilder removes id from the building set.
func (r *Registry) UnregisterBuilder(id txn.TxID) {
	r.builders.Delete(id)
}

// IsBuilder reports whether id is registered as an index builder.
func (r *Registry) IsBuilder(id txn.TxID) bool {
	_, ok := r.builders.Load(id)
	return ok
}
