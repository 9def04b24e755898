package accessor

import (
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/values"
	"github.com/infgeoax/memgraph/internal/wal"
)

// VertexRef is a borrowed handle on one vertex: the version chain plus the
// version the owning accessor resolved for its view. It stays valid for
// the accessor's lifetime only.
type VertexRef struct {
	acc  *Accessor
	list *mvstore.VertexList
	cur  *mvstore.Version[*mvstore.VertexRecord]
}

// Gid returns the vertex id.
func (v *VertexRef) Gid() gid.Gid { return v.list.Gid() }

func (v *VertexRef) record() *mvstore.VertexRecord { return v.cur.Record() }

// Labels returns the label names on the resolved version.
func (v *VertexRef) Labels() []string {
	rec := v.record()
	out := make([]string, 0, len(rec.Labels))
	for _, l := range rec.Labels {
		if name, ok := v.acc.storage.names.IdToName(l); ok {
			out = append(out, name)
		}
	}
	return out
}

// HasLabel reports whether the resolved version carries label.
func (v *VertexRef) HasLabel(label string) bool {
	id, ok := v.acc.storage.names.Lookup(label)
	return ok && v.record().HasLabel(id)
}

// Property returns the value stored under key, Null when unset.
func (v *VertexRef) Property(key string) values.Value {
	id, ok := v.acc.storage.names.Lookup(key)
	if !ok {
		return values.Null()
	}
	return v.record().Property(id)
}

// Properties returns all properties keyed by name.
func (v *VertexRef) Properties() map[string]values.Value {
	rec := v.record()
	out := make(map[string]values.Value, len(rec.Properties))
	for id, val := range rec.Properties {
		if name, ok := v.acc.storage.names.IdToName(id); ok {
			out[name] = val
		}
	}
	return out
}

// InEdges returns the adjacency entries arriving at this vertex.
func (v *VertexRef) InEdges() []mvstore.EdgeRef {
	return append([]mvstore.EdgeRef(nil), v.record().InEdges...)
}

// OutEdges returns the adjacency entries leaving this vertex.
func (v *VertexRef) OutEdges() []mvstore.EdgeRef {
	return append([]mvstore.EdgeRef(nil), v.record().OutEdges...)
}

// Reconstruct re-resolves the visible version after a command advance.
// It reports whether the vertex is still visible.
func (v *VertexRef) Reconstruct() bool {
	cur := v.list.FindVisible(v.acc.tx, v.acc.clog(), true)
	if cur == nil {
		return false
	}
	v.cur = cur
	return true
}

// InsertVertex creates a vertex. A nil requested gid allocates the next
// one; recovery passes explicit gids, and a collision on an explicit gid
// is a fatal invariant violation.
func (a *Accessor) InsertVertex(requested *gid.Gid) (*VertexRef, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var g gid.Gid
	if requested != nil {
		g = *requested
		a.storage.vertexGen.SetHighWatermark(g.LocalID() + 1)
	} else {
		g = a.storage.vertexGen.Next()
	}

	rec := mvstore.NewVertexRecord()
	list := mvstore.NewVersionList(g, rec, a.tx)
	a.storage.vertices.Insert(list)

	if err := a.storage.appendDelta(&wal.Delta{Kind: wal.KindCreateVertex, Tx: a.tx.ID(), Gid: g}); err != nil {
		return nil, err
	}
	return &VertexRef{acc: a, list: list, cur: list.Head()}, nil
}

// FindVertex resolves g for this accessor's view. With currentState the
// transaction's own uncommitted changes apply; without it the state as of
// transaction begin is used. A current-view lookup of a record this
// transaction deleted reports ErrRecordDeleted.
func (a *Accessor) FindVertex(g gid.Gid, currentState bool) (*VertexRef, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	list, ok := a.storage.vertices.Find(g)
	if !ok {
		return nil, nil
	}
	cur := list.FindVisible(a.tx, a.clog(), currentState)
	if cur == nil {
		if currentState {
			if old := list.FindVisible(a.tx, a.clog(), false); old != nil && old.TxExpired() == a.tx.ID() {
				return nil, mvstore.ErrRecordDeleted
			}
		}
		return nil, nil
	}
	return &VertexRef{acc: a, list: list, cur: cur}, nil
}

// update clones (or reuses) the current version for writing and refreshes
// the ref to point at it.
func (a *Accessor) updateVertex(v *VertexRef) (*mvstore.VertexRecord, error) {
	ver, err := v.list.Update(a.tx, a.clog())
	if err != nil {
		return nil, err
	}
	v.cur = ver
	return ver.Record(), nil
}

// AddLabel adds label to the vertex and feeds the indexes with the new
// current version.
func (a *Accessor) AddLabel(v *VertexRef, label string) error {
	if err := a.check(); err != nil {
		return err
	}
	labelID := a.storage.names.NameToId(label)
	rec, err := a.updateVertex(v)
	if err != nil {
		return err
	}
	if !rec.AddLabel(labelID) {
		return nil // already present; nothing to log or index
	}

	a.storage.labelIdx.Insert(labelID, v.Gid())
	for propID, val := range rec.Properties {
		if idx, ok := a.storage.propIdx.Get(index.Key{Label: labelID, Property: propID}); ok {
			idx.Insert(val, v.Gid())
		}
	}
	return a.storage.appendDelta(&wal.Delta{Kind: wal.KindAddLabel, Tx: a.tx.ID(), Gid: v.Gid(), Name: label})
}

// RemoveLabel removes label from the vertex. Index entries stay until the
// cleaner verifies no uncollected version carries the label anymore.
func (a *Accessor) RemoveLabel(v *VertexRef, label string) error {
	if err := a.check(); err != nil {
		return err
	}
	labelID, ok := a.storage.names.Lookup(label)
	if !ok {
		return nil
	}
	rec, err := a.updateVertex(v)
	if err != nil {
		return err
	}
	if !rec.RemoveLabel(labelID) {
		return nil
	}
	return a.storage.appendDelta(&wal.Delta{Kind: wal.KindRemoveLabel, Tx: a.tx.ID(), Gid: v.Gid(), Name: label})
}

// SetProperty sets key to value on the vertex (Null erases) and feeds the
// label-property indexes with the new current version.
func (a *Accessor) SetProperty(v *VertexRef, key string, value values.Value) error {
	if err := a.check(); err != nil {
		return err
	}
	keyID := a.storage.names.NameToId(key)
	rec, err := a.updateVertex(v)
	if err != nil {
		return err
	}
	rec.SetProperty(keyID, value)

	if !value.IsNull() {
		for _, labelID := range rec.Labels {
			if idx, ok := a.storage.propIdx.Get(index.Key{Label: labelID, Property: keyID}); ok {
				idx.Insert(value, v.Gid())
			}
		}
	}
	return a.storage.appendDelta(&wal.Delta{
		Kind: wal.KindSetProperty, Tx: a.tx.ID(), Gid: v.Gid(),
		OnVertex: true, Name: key, Value: value,
	})
}

// hasVisibleIncidentEdge reports whether any edge on rec is still visible
// to this accessor.
func (a *Accessor) hasVisibleIncidentEdge(rec *mvstore.VertexRecord) bool {
	for _, refs := range [][]mvstore.EdgeRef{rec.InEdges, rec.OutEdges} {
		for _, er := range refs {
			if list, ok := a.storage.edges.Find(er.Edge); ok {
				if list.FindVisible(a.tx, a.clog(), true) != nil {
					return true
				}
			}
		}
	}
	return false
}

// RemoveVertex logically deletes the vertex. It refuses (returning false)
// when any incident edge is still visible; callers detach first.
func (a *Accessor) RemoveVertex(v *VertexRef) (bool, error) {
	if err := a.check(); err != nil {
		return false, err
	}
	if a.hasVisibleIncidentEdge(v.record()) {
		return false, nil
	}
	if err := v.list.Remove(a.tx, a.clog()); err != nil {
		return false, err
	}
	if err := a.storage.appendDelta(&wal.Delta{Kind: wal.KindRemoveVertex, Tx: a.tx.ID(), Gid: v.Gid()}); err != nil {
		return false, err
	}
	return true, nil
}

// DetachRemoveVertex removes every visible incident edge, then the vertex.
func (a *Accessor) DetachRemoveVertex(v *VertexRef) error {
	if err := a.check(); err != nil {
		return err
	}
	rec := v.record()
	seen := make(map[gid.Gid]struct{})
	for _, refs := range [][]mvstore.EdgeRef{rec.OutEdges, rec.InEdges} {
		for _, er := range refs {
			if _, done := seen[er.Edge]; done {
				continue
			}
			seen[er.Edge] = struct{}{}
			edge, err := a.FindEdge(er.Edge, true)
			if err != nil {
				return err
			}
			if edge == nil {
				continue
			}
			if err := a.RemoveEdge(edge, true, true); err != nil {
				return err
			}
		}
	}
	// The detach ran against this vertex's new version; re-resolve before
	// expiring it.
	if !v.Reconstruct() {
		return mvstore.ErrRecordDeleted
	}
	if err := v.list.Remove(a.tx, a.clog()); err != nil {
		return err
	}
	return a.storage.appendDelta(&wal.Delta{Kind: wal.KindRemoveVertex, Tx: a.tx.ID(), Gid: v.Gid()})
}
