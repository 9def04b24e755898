// Package index implements the label index and the (label, property)
// index, both updated in the write path and verified against MVCC
// visibility on every read, plus the bookkeeping for building new indexes
// online while writers keep running.
package index

import (
	"sync"
	"sync/atomic"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/nameid"
)

// LabelIndex maps a label to the set of vertex gids that have ever carried
// it in an uncollected version. Entries are inserted in the write path and
// never verified here: readers resolve the gid through the vertex map and
// re-check visibility and label membership on the version they find.
type LabelIndex struct {
	labels sync.Map // nameid.Id -> *gidSet
}

type gidSet struct {
	m    sync.Map // gid.Gid -> struct{}
	size int64    // atomic
}

func (s *gidSet) insert(g gid.Gid) {
	if _, loaded := s.m.LoadOrStore(g, struct{}{}); !loaded {
		atomic.AddInt64(&s.size, 1)
	}
}

func (s *gidSet) remove(g gid.Gid) {
	if _, loaded := s.m.LoadAndDelete(g); loaded {
		atomic.AddInt64(&s.size, -1)
	}
}

// NewLabelIndex returns an empty label index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{}
}

func (idx *LabelIndex) set(label nameid.Id) *gidSet {
	if v, ok := idx.labels.Load(label); ok {
		return v.(*gidSet)
	}
	v, _ := idx.labels.LoadOrStore(label, &gidSet{})
	return v.(*gidSet)
}

// Insert records that the vertex g currently carries label.
func (idx *LabelIndex) Insert(label nameid.Id, g gid.Gid) {
	idx.set(label).insert(g)
}

// Remove drops g from label's set. Only the index cleaner calls this,
// once no uncollected version of g carries the label anymore.
func (idx *LabelIndex) Remove(label nameid.Id, g gid.Gid) {
	if v, ok := idx.labels.Load(label); ok {
		v.(*gidSet).remove(g)
	}
}

// ApproxCount returns the entry count for label, stale entries included.
func (idx *LabelIndex) ApproxCount(label nameid.Id) int {
	if v, ok := idx.labels.Load(label); ok {
		return int(atomic.LoadInt64(&v.(*gidSet).size))
	}
	return 0
}

// ForEach calls fn with every gid recorded under label until fn returns
// false. Callers must re-verify visibility on the resolved version.
func (idx *LabelIndex) ForEach(label nameid.Id, fn func(gid.Gid) bool) {
	v, ok := idx.labels.Load(label)
	if !ok {
		return
	}
	v.(*gidSet).m.Range(func(k, _ any) bool {
		return fn(k.(gid.Gid))
	})
}

// ForEachLabel calls fn for every label that has an entry set.
func (idx *LabelIndex) ForEachLabel(fn func(nameid.Id) bool) {
	idx.labels.Range(func(k, _ any) bool {
		return fn(k.(nameid.Id))
	})
}
