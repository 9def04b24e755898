package accessor

import (
	"fmt"
	"time"

	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/values"
	"github.com/infgeoax/memgraph/internal/wal"
)

// buildPollInterval is how often an index build re-polls the engine while
// waiting for pre-existing writers to terminate.
const buildPollInterval = time.Millisecond

// BuildIndex creates the (label, property) index online:
//
//  1. Register this transaction in the building set and install the empty
//     index, failing if one exists. From this moment every writer also
//     feeds the new index.
//  2. Capture the currently active transactions and wait for each of them
//     (except other index builders) to terminate, polling the engine.
//  3. Begin a fresh reader transaction, also registered as a builder so a
//     concurrent build cannot wait on it.
//  4. Scan all vertices visible to that reader into the index.
//  5. Commit the reader and mark the index ready.
func (a *Accessor) BuildIndex(label, property string) error {
	if err := a.check(); err != nil {
		return err
	}
	s := a.storage
	key := index.Key{Label: s.names.NameToId(label), Property: s.names.NameToId(property)}

	s.propIdx.RegisterBuilder(a.tx.ID())
	defer s.propIdx.UnregisterBuilder(a.tx.ID())

	idx, err := s.propIdx.Create(key)
	if err != nil {
		return err
	}

	preexisting := s.engine.GlobalActiveTransactions()
	for _, id := range preexisting.IDs() {
		if id == a.tx.ID() || s.propIdx.IsBuilder(id) {
			continue
		}
		for s.engine.Info(id) == txn.StateActive {
			time.Sleep(buildPollInterval)
		}
	}

	reader, err := s.Access()
	if err != nil {
		return err
	}
	s.propIdx.RegisterBuilder(reader.tx.ID())
	defer s.propIdx.UnregisterBuilder(reader.tx.ID())
	defer reader.Close()

	it, err := reader.Vertices()
	if err != nil {
		return err
	}
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		rec := v.record()
		if !rec.HasLabel(key.Label) {
			continue
		}
		if val := rec.Property(key.Property); !val.IsNull() {
			idx.Insert(val, v.Gid())
		}
	}
	if err := reader.Commit(); err != nil {
		return err
	}

	idx.MarkReady()
	return s.appendDelta(&wal.Delta{
		Kind: wal.KindBuildIndex, Tx: a.tx.ID(),
		Name: label, Property: property,
	})
}

// DropIndex retires the (label, property) index. Readers that already
// resolved it keep scanning; the container is reclaimed once no
// transaction that observed it as live remains.
func (a *Accessor) DropIndex(label, property string) (bool, error) {
	if err := a.check(); err != nil {
		return false, err
	}
	s := a.storage
	labelID, ok := s.names.Lookup(label)
	if !ok {
		return false, nil
	}
	propID, ok := s.names.Lookup(property)
	if !ok {
		return false, nil
	}
	key := index.Key{Label: labelID, Property: propID}
	return s.propIdx.Drop(key, s.engine.LocalLast()), nil
}

// IndexInfo lists the installed (label, property) indexes as
// "label(property)" strings.
func (a *Accessor) IndexInfo() ([]string, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var out []string
	for _, key := range a.storage.propIdx.Keys() {
		label, _ := a.storage.names.IdToName(key.Label)
		prop, _ := a.storage.names.IdToName(key.Property)
		out = append(out, fmt.Sprintf("%s(%s)", label, prop))
	}
	return out, nil
}

// VerticesCount returns the total number of vertex chains, uncollected
// versions included.
func (a *Accessor) VerticesCount() (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	return a.storage.vertices.Size(), nil
}

// VerticesCountByLabel returns the label index entry count; an estimate
// that includes stale entries.
func (a *Accessor) VerticesCountByLabel(label string) (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	id, ok := a.storage.names.Lookup(label)
	if !ok {
		return 0, nil
	}
	return a.storage.labelIdx.ApproxCount(id), nil
}

func (a *Accessor) readyIndex(label, property string) (*index.PropIndex, bool) {
	labelID, ok := a.storage.names.Lookup(label)
	if !ok {
		return nil, false
	}
	propID, ok := a.storage.names.Lookup(property)
	if !ok {
		return nil, false
	}
	return a.storage.propIdx.GetReady(index.Key{Label: labelID, Property: propID})
}

// VerticesCountByLabelProperty returns the total entry count of the
// (label, property) index.
func (a *Accessor) VerticesCountByLabelProperty(label, property string) (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	idx, ok := a.readyIndex(label, property)
	if !ok {
		return 0, nil
	}
	return idx.Count(), nil
}

// VerticesCountForValue returns how many index entries equal value.
func (a *Accessor) VerticesCountForValue(label, property string, value values.Value) (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	idx, ok := a.readyIndex(label, property)
	if !ok {
		return 0, nil
	}
	_, count := idx.PositionAndCount(value)
	return count, nil
}

// VerticesCountInRange counts index entries between the bounds.
func (a *Accessor) VerticesCountInRange(label, property string, lower, upper *index.Bound) (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	idx, ok := a.readyIndex(label, property)
	if !ok {
		return 0, nil
	}
	return idx.RangeCount(lower, upper), nil
}
