package values

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/infgeoax/memgraph/internal/encoding"
)

// Wire tags for the self-describing typed-value encoding shared by the WAL
// and the snapshot format. No record-level tags (Vertex, Edge) are
// defined: the durability encoders write records field by field and use
// this codec for each field, property maps included.
const (
	TagNull   = 0
	TagBool   = 1
	TagInt    = 2
	TagDouble = 3
	TagString = 4
	TagList   = 5
	TagMap    = 6
)

// ErrUnknownTag is returned by Decode when it encounters a tag it does not
// recognize. WAL replay terminates cleanly on it rather than panicking or
// corrupting subsequent reads.
var ErrUnknownTag = errors.New("values: unknown wire tag")

// Encode appends the typed-value wire encoding of v to buf and returns the
// extended slice.
func Encode(buf []byte, v Value) []byte {
	switch v.typ {
	case TypeNull:
		return append(buf, TagNull)
	case TypeBool:
		b := byte(0)
		if v.bVal {
			b = 1
		}
		return append(buf, TagBool, b)
	case TypeInt:
		buf = append(buf, TagInt)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.iVal))
		return append(buf, tmp[:]...)
	case TypeDouble:
		buf = append(buf, TagDouble)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.dVal))
		return append(buf, tmp[:]...)
	case TypeString:
		buf = append(buf, TagString)
		return encodeBytes(buf, []byte(v.sVal))
	case TypeList:
		buf = append(buf, TagList)
		var lenBuf [binary.MaxVarintLen64]byte
		n := encoding.PutVarint(lenBuf[:], uint64(len(v.lVal)))
		buf = append(buf, lenBuf[:n]...)
		for _, item := range v.lVal {
			buf = Encode(buf, item)
		}
		return buf
	case TypeMap:
		buf = append(buf, TagMap)
		keys := sortedKeys(v.mVal)
		var lenBuf [binary.MaxVarintLen64]byte
		n := encoding.PutVarint(lenBuf[:], uint64(len(keys)))
		buf = append(buf, lenBuf[:n]...)
		for _, k := range keys {
			buf = encodeBytes(buf, []byte(k))
			buf = Encode(buf, v.mVal[k])
		}
		return buf
	default:
		return append(buf, TagNull)
	}
}

func encodeBytes(buf, data []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := encoding.PutVarint(lenBuf[:], uint64(len(data)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, data...)
}

// Decode reads one typed value from data, returning the value and the
// number of bytes consumed. A truncated buffer or unrecognized tag returns
// ErrUnknownTag / io.ErrUnexpectedEOF-shaped errors so callers (WAL replay
// in particular) can stop cleanly instead of panicking.
func Decode(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, errTruncated
	}
	tag := data[0]
	pos := 1
	switch tag {
	case TagNull:
		return Null(), pos, nil
	case TagBool:
		if pos >= len(data) {
			return Value{}, 0, errTruncated
		}
		return NewBool(data[pos] != 0), pos + 1, nil
	case TagInt:
		if pos+8 > len(data) {
			return Value{}, 0, errTruncated
		}
		v := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		return NewInt(v), pos + 8, nil
	case TagDouble:
		if pos+8 > len(data) {
			return Value{}, 0, errTruncated
		}
		bits := binary.BigEndian.Uint64(data[pos : pos+8])
		return NewDouble(math.Float64frombits(bits)), pos + 8, nil
	case TagString:
		s, n, err := decodeBytes(data[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		return NewString(string(s)), pos + n, nil
	case TagList:
		count, n := encoding.GetVarint(data[pos:])
		if n == 0 {
			return Value{}, 0, errTruncated
		}
		pos += n
		items := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			item, m, err := Decode(data[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, item)
			pos += m
		}
		return NewList(items), pos, nil
	case TagMap:
		count, n := encoding.GetVarint(data[pos:])
		if n == 0 {
			return Value{}, 0, errTruncated
		}
		pos += n
		m := make(map[string]Value, count)
		for i := uint64(0); i < count; i++ {
			key, kn, err := decodeBytes(data[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += kn
			val, vn, err := Decode(data[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += vn
			m[string(key)] = val
		}
		return NewMap(m), pos, nil
	default:
		return Value{}, 0, ErrUnknownTag
	}
}

var errTruncated = errors.New("values: truncated encoding")

// ErrTruncated reports whether err signals a short/incomplete buffer, as
// opposed to an unrecognized tag. Recovery treats the two differently:
// a truncated tail is a tolerated partial write.
func ErrTruncated(err error) bool { return errors.Is(err, errTruncated) }

func decodeBytes(data []byte) ([]byte, int, error) {
	length, n := encoding.GetVarint(data)
	if n == 0 {
		return nil, 0, errTruncated
	}
	if n+int(length) > len(data) {
		return nil, 0, errTruncated
	}
	return data[n : n+int(length)], n + int(length), nil
}
