package index

import (
	"sort"
	"sync"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/values"
)

// Entry is one (value, gid) pair in a label-property index.
type Entry struct {
	Value values.Value
	Gid   gid.Gid
}

// Bound is one end of a range scan: a value plus whether the end itself is
// included. Bounding by Null is an invariant violation; Null values are
// never indexed.
type Bound struct {
	Value     values.Value
	Inclusive bool
}

// PropIndex is the ordered container behind one (label, property) index:
// entries sorted by (value, gid), supporting existence checks, total and
// positional counts, and inclusive/exclusive range counts. Readers always
// re-verify the backing version's visibility, label, and value; entries go
// stale when the owning version is collected and are swept by the cleaner.
type PropIndex struct {
	mu      sync.RWMutex
	entries []Entry

	ready   bool // set once the online build finished
	retired bool // set by DropIndex; skipped by new readers
}

// NewPropIndex returns an empty, not-yet-ready index.
func NewPropIndex() *PropIndex {
	return &PropIndex{}
}

func entryLess(a, b Entry) bool {
	if c := values.Compare(a.Value, b.Value); c != 0 {
		return c < 0
	}
	return a.Gid < b.Gid
}

// Insert adds (value, g), keeping the container sorted. Null values are
// never indexed; inserting one panics, since the write path filters them.
func (p *PropIndex) Insert(value values.Value, g gid.Gid) {
	if value.IsNull() {
		panic("index: attempted to index a Null value")
	}
	e := Entry{Value: value, Gid: g}

	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.entries), func(i int) bool { return !entryLess(p.entries[i], e) })
	if i < len(p.entries) && p.entries[i].Value.Type() == value.Type() &&
		values.Equal(p.entries[i].Value, value) && p.entries[i].Gid == g {
		return
	}
	p.entries = append(p.entries, Entry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = e
}

// Remove deletes (value, g) if present. The cleaner calls this for entries
// whose backing version is gone.
func (p *PropIndex) Remove(value values.Value, g gid.Gid) {
	e := Entry{Value: value, Gid: g}

	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.entries), func(i int) bool { return !entryLess(p.entries[i], e) })
	if i < len(p.entries) && values.Equal(p.entries[i].Value, value) && p.entries[i].Gid == g {
		p.entries = append(p.entries[:i], p.entries[i+1:]...)
	}
}

// Count returns the total number of entries, stale ones included.
func (p *PropIndex) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// PositionAndCount returns the lower-bound position of value and the
// length of the run of entries equal to it.
func (p *PropIndex) PositionAndCount(value values.Value) (position, count int) {
	if value.IsNull() {
		panic("index: position lookup by Null value")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	lo := sort.Search(len(p.entries), func(i int) bool {
		return values.Compare(p.entries[i].Value, value) >= 0
	})
	hi := sort.Search(len(p.entries), func(i int) bool {
		return values.Compare(p.entries[i].Value, value) > 0
	})
	return lo, hi - lo
}

// RangeCount returns how many entries fall between lower and upper. A nil
// bound leaves that end open.
func (p *PropIndex) RangeCount(lower, upper *Bound) int {
	if lower != nil && lower.Value.IsNull() || upper != nil && upper.Value.IsNull() {
		panic("index: range bound by Null value")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	lo := 0
	if lower != nil {
		lo = sort.Search(len(p.entries), func(i int) bool {
			c := values.Compare(p.entries[i].Value, lower.Value)
			if lower.Inclusive {
				return c >= 0
			}
			return c > 0
		})
	}
	hi := len(p.entries)
	if upper != nil {
		hi = sort.Search(len(p.entries), func(i int) bool {
			c := values.Compare(p.entries[i].Value, upper.Value)
			if upper.Inclusive {
				return c > 0
			}
			return c >= 0
		})
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// ForEachInRange calls fn for every entry between lower and upper, in
// order, until fn returns false.
func (p *PropIndex) ForEachInRange(lower, upper *Bound, fn func(Entry) bool) {
	if lower != nil && lower.Value.IsNull() || upper != nil && upper.Value.IsNull() {
		panic("index: range bound by Null value")
	}
	p.mu.RLock()
	snapshot := make([]Entry, len(p.entries))
	copy(snapshot, p.entries)
	p.mu.RUnlock()

	for _, e := range snapshot {
		if lower != nil {
			c := values.Compare(e.Value, lower.Value)
			if c < 0 || (c == 0 && !lower.Inclusive) {
				continue
			}
		}
		if upper != nil {
			c := values.Compare(e.Value, upper.Value)
			if c > 0 || (c == 0 && !upper.Inclusive) {
				break
			}
		}
		if !fn(e) {
			return
		}
	}
}

// ForEach calls fn for every entry in order until fn returns false.
func (p *PropIndex) ForEach(fn func(Entry) bool) {
	p.ForEachInRange(nil, nil, fn)
}

// Ready reports whether the online build has finished.
func (p *PropIndex) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// MarkReady flags the index as fully built.
func (p *PropIndex) MarkReady() {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
}

// Retired reports whether DropIndex has retired this index.
func (p *PropIndex) Retired() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retired
}

func (p *PropIndex) markRetired() {
	p.mu.Lock()
	p.retired = true
	p.mu.Unlock()
}
