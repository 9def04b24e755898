package accessor

import (
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/nameid"
	"github.com/infgeoax/memgraph/internal/values"
)

// VertexIterator pulls visible vertices one at a time, optionally
// filtering on a label, a (label, property) pair, an exact value, or a
// value range. Candidates come from the relevant index when one applies;
// visibility and membership are always re-verified on the resolved
// version, since index entries can be stale.
type VertexIterator struct {
	acc        *Accessor
	candidates []gid.Gid
	pos        int

	label    nameid.Id
	property nameid.Id
	hasLabel bool
	hasProp  bool
	value    *values.Value
	lower    *index.Bound
	upper    *index.Bound
}

// Next returns the next matching visible vertex, or false when exhausted.
func (it *VertexIterator) Next() (*VertexRef, bool) {
	for it.pos < len(it.candidates) {
		g := it.candidates[it.pos]
		it.pos++

		list, ok := it.acc.storage.vertices.Find(g)
		if !ok {
			continue
		}
		cur := list.FindVisible(it.acc.tx, it.acc.clog(), true)
		if cur == nil {
			continue
		}
		rec := cur.Record()
		if it.hasLabel && !rec.HasLabel(it.label) {
			continue
		}
		if it.hasProp {
			val := rec.Property(it.property)
			if val.IsNull() {
				continue
			}
			if it.value != nil && !values.Equal(val, *it.value) {
				continue
			}
			if !withinBounds(val, it.lower, it.upper) {
				continue
			}
		}
		return &VertexRef{acc: it.acc, list: list, cur: cur}, true
	}
	return nil, false
}

func withinBounds(val values.Value, lower, upper *index.Bound) bool {
	if lower != nil {
		c := values.Compare(val, lower.Value)
		if c < 0 || (c == 0 && !lower.Inclusive) {
			return false
		}
	}
	if upper != nil {
		c := values.Compare(val, upper.Value)
		if c > 0 || (c == 0 && !upper.Inclusive) {
			return false
		}
	}
	return true
}

// Vertices returns an iterator over every visible vertex.
func (a *Accessor) Vertices() (*VertexIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var candidates []gid.Gid
	a.storage.vertices.Range(func(l *mvstore.VertexList) bool {
		candidates = append(candidates, l.Gid())
		return true
	})
	return &VertexIterator{acc: a, candidates: candidates}, nil
}

// VerticesByLabel iterates vertices carrying label, candidates drawn from
// the label index.
func (a *Accessor) VerticesByLabel(label string) (*VertexIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	it := &VertexIterator{acc: a, hasLabel: true}
	labelID, ok := a.storage.names.Lookup(label)
	if !ok {
		return it, nil
	}
	it.label = labelID
	a.storage.labelIdx.ForEach(labelID, func(g gid.Gid) bool {
		it.candidates = append(it.candidates, g)
		return true
	})
	return it, nil
}

// verticesFromPropIndex builds an iterator off the (label, property)
// index, constrained by the given bounds. When the index is absent or not
// ready the full vertex set is the candidate pool instead.
func (a *Accessor) verticesFromPropIndex(label, property string, value *values.Value, lower, upper *index.Bound) (*VertexIterator, error) {
	it := &VertexIterator{acc: a, hasLabel: true, hasProp: true, value: value, lower: lower, upper: upper}

	labelID, labelKnown := a.storage.names.Lookup(label)
	propID, propKnown := a.storage.names.Lookup(property)
	if !labelKnown || !propKnown {
		return it, nil
	}
	it.label, it.property = labelID, propID

	if idx, ok := a.storage.propIdx.GetReady(index.Key{Label: labelID, Property: propID}); ok {
		var scanLower, scanUpper *index.Bound
		if value != nil {
			scanLower = &index.Bound{Value: *value, Inclusive: true}
			scanUpper = scanLower
		} else {
			scanLower, scanUpper = lower, upper
		}
		idx.ForEachInRange(scanLower, scanUpper, func(e index.Entry) bool {
			it.candidates = append(it.candidates, e.Gid)
			return true
		})
		return it, nil
	}

	// No usable index: fall back to a full scan with the same filters.
	a.storage.vertices.Range(func(l *mvstore.VertexList) bool {
		it.candidates = append(it.candidates, l.Gid())
		return true
	})
	return it, nil
}

// VerticesByLabelProperty iterates vertices with label and a non-null
// value for property.
func (a *Accessor) VerticesByLabelProperty(label, property string) (*VertexIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.verticesFromPropIndex(label, property, nil, nil, nil)
}

// VerticesForValue iterates vertices with label whose property equals
// value exactly.
func (a *Accessor) VerticesForValue(label, property string, value values.Value) (*VertexIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.verticesFromPropIndex(label, property, &value, nil, nil)
}

// VerticesInRange iterates vertices with label whose property falls
// between the bounds.
func (a *Accessor) VerticesInRange(label, property string, lower, upper *index.Bound) (*VertexIterator, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.verticesFromPropIndex(label, property, nil, lower, upper)
}
