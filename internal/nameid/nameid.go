// Package nameid implements the bidirectional, monotonically-growing
// mapping between human-readable names (labels, edge types, property keys)
// and dense numeric ids that every other component addresses them by.
package nameid

import (
	"sync"
	"sync/atomic"
)

// Id is a dense, process-local identifier assigned to a name the first
// time it is seen. Ids are never reused and grow monotonically.
type Id uint32

// Mapper is a lock-free (sync.Map backed) bidirectional name<->id table.
// A losing race on NameToId wastes at most one id; it never assigns the
// same name two different ids, and it never hands out one id for two
// names.
type Mapper struct {
	nameToID sync.Map // string -> Id
	idToName sync.Map // Id -> string
	nextID   uint32   // atomically incremented, 0 is never assigned
}

// New returns an empty Mapper.
func New() *Mapper {
	return &Mapper{}
}

// NameToId returns the id for name, assigning a fresh one if name has
// never been seen. Concurrent first-calls for the same name may each
// allocate a ticket, but only one ticket is ever installed: the loser's
// id is simply never referenced again.
func (m *Mapper) NameToId(name string) Id {
	if v, ok := m.nameToID.Load(name); ok {
		return v.(Id)
	}

	candidate := Id(atomic.AddUint32(&m.nextID, 1))

	actual, loaded := m.nameToID.LoadOrStore(name, candidate)
	id := actual.(Id)
	if !loaded {
		m.idToName.Store(id, name)
	}
	return id
}

// IdToName returns the name registered for id, and whether it exists.
func (m *Mapper) IdToName(id Id) (string, bool) {
	v, ok := m.idToName.Load(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Lookup returns the id for name without assigning a new one.
func (m *Mapper) Lookup(name string) (Id, bool) {
	v, ok := m.nameToID.Load(name)
	if !ok {
		return 0, false
	}
	return v.(Id), true
}

// Len returns the number of distinct names currently registered. It is
// approximate under concurrent insertion, intended for diagnostics only.
func (m *Mapper) Len() int {
	n := 0
	m.nameToID.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
