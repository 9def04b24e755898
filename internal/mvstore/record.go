// Package mvstore implements the record store: per-entity version chains
// with creation and expiration transaction stamps, the visibility rule that
// picks exactly one version per reader, and the lock-free concurrent maps
// the storage addresses version lists through.
package mvstore

import (
	"errors"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/nameid"
	"github.com/infgeoax/memgraph/internal/values"
)

var (
	// ErrSerialization is returned when another transaction already holds
	// an uncommitted expiration on the version being written. The caller's
	// transaction must abort.
	ErrSerialization = errors.New("mvstore: serialization conflict")

	// ErrRecordDeleted is returned when a current-view operation reaches a
	// record whose current version was expired by the same transaction.
	ErrRecordDeleted = errors.New("mvstore: record deleted")
)

// EdgeRef is one adjacency entry on a vertex: the edge, the vertex on the
// other side, and the edge type. Endpoints are referenced by Gid and
// resolved through the shared maps, never by owning pointer.
type EdgeRef struct {
	Edge     gid.Gid
	Other    gid.Gid
	EdgeType nameid.Id
}

// VertexRecord is one immutable-once-published version of a vertex.
type VertexRecord struct {
	Labels     []nameid.Id
	Properties map[nameid.Id]values.Value
	InEdges    []EdgeRef
	OutEdges   []EdgeRef
}

// NewVertexRecord returns an empty vertex record.
func NewVertexRecord() *VertexRecord {
	return &VertexRecord{Properties: make(map[nameid.Id]values.Value)}
}

// Clone deep-copies the record so a new version can diverge from it.
func (r *VertexRecord) Clone() *VertexRecord {
	cp := &VertexRecord{
		Labels:     append([]nameid.Id(nil), r.Labels...),
		Properties: make(map[nameid.Id]values.Value, len(r.Properties)),
		InEdges:    append([]EdgeRef(nil), r.InEdges...),
		OutEdges:   append([]EdgeRef(nil), r.OutEdges...),
	}
	for k, v := range r.Properties {
		cp.Properties[k] = v
	}
	return cp
}

// HasLabel reports whether the record carries label.
func (r *VertexRecord) HasLabel(label nameid.Id) bool {
	for _, l := range r.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AddLabel appends label if not present; reports whether it was added.
func (r *VertexRecord) AddLabel(label nameid.Id) bool {
	if r.HasLabel(label) {
		return false
	}
	r.Labels = append(r.Labels, label)
	return true
}

// RemoveLabel drops label if present; reports whether it was removed.
func (r *VertexRecord) RemoveLabel(label nameid.Id) bool {
	for i, l := range r.Labels {
		if l == label {
			r.Labels = append(r.Labels[:i], r.Labels[i+1:]...)
			return true
		}
	}
	return false
}

// SetProperty stores value under key; a Null value erases the entry.
func (r *VertexRecord) SetProperty(key nameid.Id, value values.Value) {
	if value.IsNull() {
		delete(r.Properties, key)
		return
	}
	r.Properties[key] = value
}

// Property returns the stored value for key, or Null when unset.
func (r *VertexRecord) Property(key nameid.Id) values.Value {
	if v, ok := r.Properties[key]; ok {
		return v
	}
	return values.Null()
}

// EdgeRecord is one immutable-once-published version of an edge. From and
// To reference the endpoint vertices by Gid.
type EdgeRecord struct {
	From       gid.Gid
	To         gid.Gid
	EdgeType   nameid.Id
	Properties map[nameid.Id]values.Value
}

// NewEdgeRecord returns an edge record connecting from to to.
func NewEdgeRecord(from, to gid.Gid, edgeType nameid.Id) *EdgeRecord {
	return &EdgeRecord{
		From:       from,
		To:         to,
		EdgeType:   edgeType,
		Properties: make(map[nameid.Id]values.Value),
	}
}

// Clone deep-copies the record so a new version can diverge from it.
func (r *EdgeRecord) Clone() *EdgeRecord {
	cp := &EdgeRecord{
		From:       r.From,
		To:         r.To,
		EdgeType:   r.EdgeType,
		Properties: make(map[nameid.Id]values.Value, len(r.Properties)),
	}
	for k, v := range r.Properties {
		cp.Properties[k] = v
	}
	return cp
}

// SetProperty stores value under key; a Null value erases the entry.
func (r *EdgeRecord) SetProperty(key nameid.Id, value values.Value) {
	if value.IsNull() {
		delete(r.Properties, key)
		return
	}
	r.Properties[key] = value
}

// Property returns the stored value for key, or Null when unset.
func (r *EdgeRecord) Property(key nameid.Id) values.Value {
	if v, ok := r.Properties[key]; ok {
		return v
	}
	return values.Null()
}
