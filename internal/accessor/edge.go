package accessor

import (
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/values"
	"github.com/infgeoax/memgraph/internal/wal"
)

// EdgeRef is a borrowed handle on one edge, tied to the owning accessor.
type EdgeRef struct {
	acc  *Accessor
	list *mvstore.EdgeList
	cur  *mvstore.Version[*mvstore.EdgeRecord]
}

// Gid returns the edge id.
func (e *EdgeRef) Gid() gid.Gid { return e.list.Gid() }

func (e *EdgeRef) record() *mvstore.EdgeRecord { return e.cur.Record() }

// From returns the source vertex gid.
func (e *EdgeRef) From() gid.Gid { return e.record().From }

// To returns the destination vertex gid.
func (e *EdgeRef) To() gid.Gid { return e.record().To }

// EdgeType returns the edge type name.
func (e *EdgeRef) EdgeType() string {
	name, _ := e.acc.storage.names.IdToName(e.record().EdgeType)
	return name
}

// Property returns the value stored under key, Null when unset.
func (e *EdgeRef) Property(key string) values.Value {
	id, ok := e.acc.storage.names.Lookup(key)
	if !ok {
		return values.Null()
	}
	return e.record().Property(id)
}

// Properties returns all properties keyed by name.
func (e *EdgeRef) Properties() map[string]values.Value {
	rec := e.record()
	out := make(map[string]values.Value, len(rec.Properties))
	for id, val := range rec.Properties {
		if name, ok := e.acc.storage.names.IdToName(id); ok {
			out[name] = val
		}
	}
	return out
}

// Reconstruct re-resolves the visible version; reports whether the edge is
// still visible.
func (e *EdgeRef) Reconstruct() bool {
	cur := e.list.FindVisible(e.acc.tx, e.acc.clog(), true)
	if cur == nil {
		return false
	}
	e.cur = cur
	return true
}

// InsertEdge creates an edge from one vertex to another and links it into
// both adjacency lists. Both endpoint updates can fail with a
// serialization error when a concurrent transaction got there first.
func (a *Accessor) InsertEdge(from, to *VertexRef, edgeType string, requested *gid.Gid) (*EdgeRef, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var g gid.Gid
	if requested != nil {
		g = *requested
		a.storage.edgeGen.SetHighWatermark(g.LocalID() + 1)
	} else {
		g = a.storage.edgeGen.Next()
	}
	typeID := a.storage.names.NameToId(edgeType)

	rec := mvstore.NewEdgeRecord(from.Gid(), to.Gid(), typeID)
	list := mvstore.NewVersionList(g, rec, a.tx)

	ref := mvstore.EdgeRef{Edge: g, Other: to.Gid(), EdgeType: typeID}
	fromRec, err := a.updateVertex(from)
	if err != nil {
		return nil, err
	}
	fromRec.OutEdges = append(fromRec.OutEdges, ref)

	if to.Gid() == from.Gid() {
		fromRec.InEdges = append(fromRec.InEdges, mvstore.EdgeRef{Edge: g, Other: from.Gid(), EdgeType: typeID})
		to.cur = from.cur
	} else {
		toRec, err := a.updateVertex(to)
		if err != nil {
			return nil, err
		}
		toRec.InEdges = append(toRec.InEdges, mvstore.EdgeRef{Edge: g, Other: from.Gid(), EdgeType: typeID})
	}

	a.storage.edges.Insert(list)

	if err := a.storage.appendDelta(&wal.Delta{
		Kind: wal.KindCreateEdge, Tx: a.tx.ID(),
		Gid: g, From: from.Gid(), To: to.Gid(), Name: edgeType,
	}); err != nil {
		return nil, err
	}
	return &EdgeRef{acc: a, list: list, cur: list.Head()}, nil
}

// FindEdge resolves g for this accessor's view, mirroring FindVertex.
func (a *Accessor) FindEdge(g gid.Gid, currentState bool) (*EdgeRef, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	list, ok := a.storage.edges.Find(g)
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
	return &EdgeRef{acc: a, list: list, cur: cur}, nil
}

// SetEdgeProperty sets key to value on the edge (Null erases).
func (a *Accessor) SetEdgeProperty(e *EdgeRef, key string, value values.Value) error {
	if err := a.check(); err != nil {
		return err
	}
	keyID := a.storage.names.NameToId(key)
	ver, err := e.list.Update(a.tx, a.clog())
	if err != nil {
		return err
	}
	e.cur = ver
	ver.Record().SetProperty(keyID, value)

	return a.storage.appendDelta(&wal.Delta{
		Kind: wal.KindSetProperty, Tx: a.tx.ID(), Gid: e.Gid(),
		OnVertex: false, Name: key, Value: value,
	})
}

func dropEdgeRef(refs []mvstore.EdgeRef, edge gid.Gid) []mvstore.EdgeRef {
	out := refs[:0]
	for _, r := range refs {
		if r.Edge != edge {
			out = append(out, r)
		}
	}
	return out
}

// RemoveEdge logically deletes the edge and, per side flag, unlinks it
// from the endpoint adjacency lists.
func (a *Accessor) RemoveEdge(e *EdgeRef, fromSide, toSide bool) error {
	if err := a.check(); err != nil {
		return err
	}
	rec := e.record()

	if err := e.list.Remove(a.tx, a.clog()); err != nil {
		return err
	}

	if fromSide {
		from, err := a.FindVertex(rec.From, true)
		if err != nil {
			return err
		}
		if from != nil {
			fromRec, err := a.updateVertex(from)
			if err != nil {
				return err
			}
			fromRec.OutEdges = dropEdgeRef(fromRec.OutEdges, e.Gid())
			if rec.From == rec.To {
				fromRec.InEdges = dropEdgeRef(fromRec.InEdges, e.Gid())
			}
		}
	}
	if toSide && rec.From != rec.To {
		to, err := a.FindVertex(rec.To, true)
		if err != nil {
			return err
		}
		if to != nil {
			toRec, err := a.updateVertex(to)
			if err != nil {
				return err
			}
			toRec.InEdges = dropEdgeRef(toRec.InEdges, e.Gid())
		}
	}

	return a.storage.appendDelta(&wal.Delta{Kind: wal.KindRemoveEdge, Tx: a.tx.ID(), Gid: e.Gid()})
}

// EdgeIterator walks every edge visible to the accessor.
type EdgeIterator struct {
	acc    *Accessor
	chains []*mvstore.EdgeList
	pos    int
}

// Edges returns an iterator over all visible edges.
func (a *Accessor) Edges() (*EdgeIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var chains []*mvstore.EdgeList
	a.storage.edges.Range(func(l *mvstore.EdgeList) bool {
		chains = append(chains, l)
		return true
	})
	return &EdgeIterator{acc: a, chains: chains}, nil
}

// Next returns the next visible edge, or false when exhausted.
func (it *EdgeIterator) Next() (*EdgeRef, bool) {
	for it.pos < len(it.chains) {
		list := it.chains[it.pos]
		it.pos++
		if cur := list.FindVisible(it.acc.tx, it.acc.clog(), true); cur != nil {
			return &EdgeRef{acc: it.acc, list: list, cur: cur}, true
		}
	}
	return nil, false
}
