package accessor

import (
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/infgeoax/memgraph/internal/snapshot"
)

// TakeSnapshot persists the graph as seen by a fresh reader transaction:
// generator high-water-marks, the snapshotter's id and snapshot set, the
// installed index keys, then every visible vertex and edge. Writers keep
// running; the reader's MVCC view is what makes the file consistent.
func (s *Storage) TakeSnapshot(fs afero.Fs, dir string, generation uuid.UUID) (string, error) {
	acc, err := s.Access()
	if err != nil {
		return "", err
	}
	defer acc.Close()

	data := &snapshot.Data{
		VertexGenHigh: s.vertexGen.HighWatermark(),
		EdgeGenHigh:   s.edgeGen.HighWatermark(),
		TxID:          acc.tx.ID(),
		TxSnapshot:    acc.tx.Snapshot().IDs(),
	}

	for _, key := range s.propIdx.Keys() {
		label, _ := s.names.IdToName(key.Label)
		prop, _ := s.names.IdToName(key.Property)
		data.Indexes = append(data.Indexes, snapshot.IndexKey{Label: label, Property: prop})
	}

	vit, err := acc.Vertices()
	if err != nil {
		return "", err
	}
	for v, ok := vit.Next(); ok; v, ok = vit.Next() {
		data.Vertices = append(data.Vertices, snapshot.Vertex{
			Gid:        v.Gid(),
			Labels:     v.Labels(),
			Properties: v.Properties(),
		})
	}

	eit, err := acc.Edges()
	if err != nil {
		return "", err
	}
	for e, ok := eit.Next(); ok; e, ok = eit.Next() {
		data.Edges = append(data.Edges, snapshot.Edge{
			Gid:        e.Gid(),
			From:       e.From(),
			To:         e.To(),
			EdgeType:   e.EdgeType(),
			Properties: e.Properties(),
		})
	}

	name, err := snapshot.Write(fs, dir, generation, data)
	if err != nil {
		return "", err
	}
	if err := acc.Commit(); err != nil {
		return "", err
	}
	s.log.Info().Str("file", name).
		Int("vertices", len(data.Vertices)).
		Int("edges", len(data.Edges)).
		Msg("snapshot written")
	return name, nil
}
