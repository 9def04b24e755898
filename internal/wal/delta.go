// Package wal implements the write-ahead log: self-describing state deltas,
// their wire encoding, and append-only segment files whose names carry a
// rotation sequence number, so they sort in append order, and the maximum
// transaction id they contain.
package wal

import (
	"encoding/binary"
	"errors"

	"github.com/infgeoax/memgraph/internal/encoding"
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/values"
)

// Kind tags the delta variants. Values are part of the on-disk format and
// must not be reordered.
type Kind uint8

const (
	KindTxBegin Kind = iota + 1
	KindTxCommit
	KindTxAbort
	KindCreateVertex
	KindRemoveVertex
	KindCreateEdge
	KindRemoveEdge
	KindSetProperty
	KindAddLabel
	KindRemoveLabel
	KindBuildIndex
	KindCounterSet
)

func (k Kind) String() string {
	switch k {
	case KindTxBegin:
		return "TxBegin"
	case KindTxCommit:
		return "TxCommit"
	case KindTxAbort:
		return "TxAbort"
	case KindCreateVertex:
		return "CreateVertex"
	case KindRemoveVertex:
		return "RemoveVertex"
	case KindCreateEdge:
		return "CreateEdge"
	case KindRemoveEdge:
		return "RemoveEdge"
	case KindSetProperty:
		return "SetProperty"
	case KindAddLabel:
		return "AddLabel"
	case KindRemoveLabel:
		return "RemoveLabel"
	case KindBuildIndex:
		return "BuildIndex"
	case KindCounterSet:
		return "CounterSet"
	default:
		return "Unknown"
	}
}

var (
	// ErrUnknownKind is returned when a decoded tag is not a known delta
	// kind. Replay terminates cleanly on it.
	ErrUnknownKind = errors.New("wal: unknown delta kind")

	// ErrTruncated is returned when a delta is cut short. A truncated tail
	// ends replay without failing recovery.
	ErrTruncated = errors.New("wal: truncated delta")
)

// Delta is one serializable, self-describing mutation. Which fields are
// meaningful depends on Kind; names (labels, edge types, property keys,
// counter names) travel as strings so a recovering process can rebuild its
// own id registry.
type Delta struct {
	Kind Kind
	Tx   txn.TxID

	Gid      gid.Gid
	From, To gid.Gid

	OnVertex bool   // SetProperty: vertex or edge target
	Name     string // label, edge type, property key, or counter name
	Property string // BuildIndex: property key next to Name's label
	Value    values.Value
}

func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := encoding.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendVarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// Encode appends the wire form of d to buf: a kind byte, the transaction
// id, then the kind's fields. Property values use the shared typed-value
// encoding, the same one the snapshot writer uses.
func (d *Delta) Encode(buf []byte) []byte {
	buf = append(buf, byte(d.Kind))
	buf = appendVarint(buf, uint64(d.Tx))

	switch d.Kind {
	case KindTxBegin, KindTxCommit, KindTxAbort:
	case KindCreateVertex, KindRemoveVertex, KindRemoveEdge:
		buf = appendVarint(buf, uint64(d.Gid))
	case KindCreateEdge:
		buf = appendVarint(buf, uint64(d.Gid))
		buf = appendVarint(buf, uint64(d.From))
		buf = appendVarint(buf, uint64(d.To))
		buf = appendString(buf, d.Name)
	case KindSetProperty:
		target := byte(0)
		if d.OnVertex {
			target = 1
		}
		buf = append(buf, target)
		buf = appendVarint(buf, uint64(d.Gid))
		buf = appendString(buf, d.Name)
		buf = values.Encode(buf, d.Value)
	case KindAddLabel, KindRemoveLabel:
		buf = appendVarint(buf, uint64(d.Gid))
		buf = appendString(buf, d.Name)
	case KindBuildIndex:
		buf = appendString(buf, d.Name)
		buf = appendString(buf, d.Property)
	case KindCounterSet:
		buf = appendString(buf, d.Name)
		buf = values.Encode(buf, d.Value)
	}
	return buf
}

type decoder struct {
	data []byte
	pos  int
}

func (r *decoder) varint() (uint64, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	v, n := encoding.GetVarint(r.data[r.pos:])
	if n == 0 {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

func (r *decoder) str() (string, error) {
	length, err := r.varint()
	if err != nil {
		return "", err
	}
	if r.pos+int(length) > len(r.data) {
		return "", ErrTruncated
	}
	s := string(r.data[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s, nil
}

func (r *decoder) value() (values.Value, error) {
	v, n, err := values.Decode(r.data[r.pos:])
	if err != nil {
		if values.ErrTruncated(err) {
			return values.Value{}, ErrTruncated
		}
		return values.Value{}, err
	}
	r.pos += n
	return v, nil
}

func (r *decoder) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// DecodeDelta parses one delta payload produced by Encode.
func DecodeDelta(data []byte) (Delta, error) {
	r := &decoder{data: data}

	kindByte, err := r.byte()
	if err != nil {
		return Delta{}, err
	}
	d := Delta{Kind: Kind(kindByte)}
	if d.Kind < KindTxBegin || d.Kind > KindCounterSet {
		return Delta{}, ErrUnknownKind
	}

	tx, err := r.varint()
	if err != nil {
		return Delta{}, err
	}
	d.Tx = txn.TxID(tx)

	switch d.Kind {
	case KindTxBegin, KindTxCommit, KindTxAbort:
	case KindCreateVertex, KindRemoveVertex, KindRemoveEdge:
		g, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		d.Gid = gid.Gid(g)
	case KindCreateEdge:
		g, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		from, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		to, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		name, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		d.Gid, d.From, d.To, d.Name = gid.Gid(g), gid.Gid(from), gid.Gid(to), name
	case KindSetProperty:
		target, err := r.byte()
		if err != nil {
			return Delta{}, err
		}
		g, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		name, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		val, err := r.value()
		if err != nil {
			return Delta{}, err
		}
		d.OnVertex, d.Gid, d.Name, d.Value = target == 1, gid.Gid(g), name, val
	case KindAddLabel, KindRemoveLabel:
		g, err := r.varint()
		if err != nil {
			return Delta{}, err
		}
		name, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		d.Gid, d.Name = gid.Gid(g), name
	case KindBuildIndex:
		name, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		prop, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		d.Name, d.Property = name, prop
	case KindCounterSet:
		name, err := r.str()
		if err != nil {
			return Delta{}, err
		}
		val, err := r.value()
		if err != nil {
			return Delta{}, err
		}
		d.Name, d.Value = name, val
	}
	return d, nil
}
