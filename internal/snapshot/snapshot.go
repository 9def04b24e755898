// Package snapshot implements the durable snapshot format: a header with
// generator high-water-marks and the snapshotter's transaction view, the
// full vertex and edge sets, the installed index keys, and a footer whose
// hash covers the entire file including the trailing counts.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/values"
)

const (
	// Magic identifies a snapshot file.
	Magic = "MGSN"

	// FormatVersion is the snapshot format version.
	FormatVersion int64 = 1
)

var (
	// ErrBadSnapshot is returned for any snapshot that fails validation:
	// wrong magic, unsupported version, truncated content, or hash
	// mismatch. Recovery falls back to the previous snapshot.
	ErrBadSnapshot = errors.New("snapshot: validation failed")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Vertex is one vertex as persisted: its gid, label names, and properties
// keyed by name. Names are persisted as strings so recovery can rebuild
// the id registry from scratch.
type Vertex struct {
	Gid        gid.Gid
	Labels     []string
	Properties map[string]values.Value
}

// Edge is one edge as persisted.
type Edge struct {
	Gid        gid.Gid
	From, To   gid.Gid
	EdgeType   string
	Properties map[string]values.Value
}

// IndexKey is one persisted (label, property) index.
type IndexKey struct {
	Label    string
	Property string
}

// Data is the full decoded content of a snapshot file.
type Data struct {
	VertexGenHigh uint64
	EdgeGenHigh   uint64
	TxID          txn.TxID
	TxSnapshot    []txn.TxID
	Indexes       []IndexKey
	Vertices      []Vertex
	Edges         []Edge
}

// FileName builds a snapshot filename. The zero-padded snapshotter tx id
// keeps lexicographic order chronological; the generation id tags the
// durability directory generation.
func FileName(txID txn.TxID, generation uuid.UUID) string {
	return fmt.Sprintf("snapshot_%020d_%s.snapshot", uint64(txID), generation)
}

// writer accumulates the encoded stream and its running hash.
type writer struct {
	file afero.File
	crc  uint32
	n    int64
}

func (w *writer) write(p []byte) error {
	w.crc = crc32.Update(w.crc, crcTable, p)
	w.n += int64(len(p))
	_, err := w.file.Write(p)
	return err
}

func (w *writer) writeValue(v values.Value) error {
	return w.write(values.Encode(nil, v))
}

func (w *writer) writeInt(v int64) error {
	return w.writeValue(values.NewInt(v))
}

func encodeProperties(props map[string]values.Value) values.Value {
	return values.NewMap(props)
}

func encodeStringList(items []string) values.Value {
	vs := make([]values.Value, len(items))
	for i, s := range items {
		vs[i] = values.NewString(s)
	}
	return values.NewList(vs)
}

// Write persists data as a new snapshot file in dir and returns the file
// path. The layout is
//
//	MAGIC || VERSION || vertex_gen_high || edge_gen_high ||
//	snapshotter_tx_id || snapshotter_snapshot || indexes ||
//	vertices || edges || vertex_count || edge_count || hash
//
// with every field between MAGIC and the hash in the shared typed-value
// encoding, the hash written as a raw little-endian uint64, and the hash
// covering everything from MAGIC through the trailing counts.
func Write(fs afero.Fs, dir string, generation uuid.UUID, data *Data) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := path.Join(dir, FileName(data.TxID, generation))
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := &writer{file: f}
	if err := w.write([]byte(Magic)); err != nil {
		return "", err
	}
	if err := w.writeInt(FormatVersion); err != nil {
		return "", err
	}
	if err := w.writeInt(int64(data.VertexGenHigh)); err != nil {
		return "", err
	}
	if err := w.writeInt(int64(data.EdgeGenHigh)); err != nil {
		return "", err
	}
	if err := w.writeInt(int64(data.TxID)); err != nil {
		return "", err
	}

	snapIDs := make([]values.Value, len(data.TxSnapshot))
	for i, id := range data.TxSnapshot {
		snapIDs[i] = values.NewInt(int64(id))
	}
	if err := w.writeValue(values.NewList(snapIDs)); err != nil {
		return "", err
	}

	// Indexes persist as a flat list of interleaved label/property names.
	interleaved := make([]string, 0, len(data.Indexes)*2)
	for _, k := range data.Indexes {
		interleaved = append(interleaved, k.Label, k.Property)
	}
	if err := w.writeValue(encodeStringList(interleaved)); err != nil {
		return "", err
	}

	for _, v := range data.Vertices {
		if err := w.writeInt(int64(v.Gid)); err != nil {
			return "", err
		}
		if err := w.writeValue(encodeStringList(sortedCopy(v.Labels))); err != nil {
			return "", err
		}
		if err := w.writeValue(encodeProperties(v.Properties)); err != nil {
			return "", err
		}
	}
	for _, e := range data.Edges {
		if err := w.writeInt(int64(e.Gid)); err != nil {
			return "", err
		}
		if err := w.writeInt(int64(e.From)); err != nil {
			return "", err
		}
		if err := w.writeInt(int64(e.To)); err != nil {
			return "", err
		}
		if err := w.writeValue(values.NewString(e.EdgeType)); err != nil {
			return "", err
		}
		if err := w.writeValue(encodeProperties(e.Properties)); err != nil {
			return "", err
		}
	}

	if err := w.writeInt(int64(len(data.Vertices))); err != nil {
		return "", err
	}
	if err := w.writeInt(int64(len(data.Edges))); err != nil {
		return "", err
	}

	var hashBuf [8]byte
	binary.LittleEndian.PutUint64(hashBuf[:], uint64(w.crc))
	if _, err := f.Write(hashBuf[:]); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	return name, nil
}

func sortedCopy(items []string) []string {
	cp := append([]string(nil), items...)
	sort.Strings(cp)
	return cp
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) value() (values.Value, error) {
	v, n, err := values.Decode(r.data[r.pos:])
	if err != nil {
		return values.Value{}, ErrBadSnapshot
	}
	r.pos += n
	return v, nil
}

func (r *reader) int64() (int64, error) {
	v, err := r.value()
	if err != nil {
		return 0, err
	}
	i, err := v.Int()
	if err != nil {
		return 0, ErrBadSnapshot
	}
	return i, nil
}

func (r *reader) stringList() ([]string, error) {
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	list, err := v.List()
	if err != nil {
		return nil, ErrBadSnapshot
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, err := item.String_()
		if err != nil {
			return nil, ErrBadSnapshot
		}
		out[i] = s
	}
	return out, nil
}

func (r *reader) properties() (map[string]values.Value, error) {
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	m, err := v.Map()
	if err != nil {
		return nil, ErrBadSnapshot
	}
	return m, nil
}

// Read loads and validates one snapshot file. Validation is strict: magic,
// version, counts, and the footer hash must all check out, otherwise
// ErrBadSnapshot is returned and the caller tries an older snapshot.
func Read(fs afero.Fs, filename string) (*Data, error) {
	raw, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, err
	}
	if len(raw) < len(Magic)+8 || string(raw[:len(Magic)]) != Magic {
		return nil, ErrBadSnapshot
	}

	content, hashBytes := raw[:len(raw)-8], raw[len(raw)-8:]
	storedHash := binary.LittleEndian.Uint64(hashBytes)
	if uint64(crc32.Checksum(content, crcTable)) != storedHash {
		return nil, ErrBadSnapshot
	}

	r := &reader{data: content, pos: len(Magic)}
	version, err := r.int64()
	if err != nil {
		return nil, err
	}
	if version != FormatVersion {
		return nil, ErrBadSnapshot
	}

	data := &Data{}
	vGen, err := r.int64()
	if err != nil {
		return nil, err
	}
	eGen, err := r.int64()
	if err != nil {
		return nil, err
	}
	txID, err := r.int64()
	if err != nil {
		return nil, err
	}
	data.VertexGenHigh, data.EdgeGenHigh, data.TxID = uint64(vGen), uint64(eGen), txn.TxID(txID)

	snapVal, err := r.value()
	if err != nil {
		return nil, err
	}
	snapList, err := snapVal.List()
	if err != nil {
		return nil, ErrBadSnapshot
	}
	for _, item := range snapList {
		id, err := item.Int()
		if err != nil {
			return nil, ErrBadSnapshot
		}
		data.TxSnapshot = append(data.TxSnapshot, txn.TxID(id))
	}

	interleaved, err := r.stringList()
	if err != nil {
		return nil, err
	}
	if len(interleaved)%2 != 0 {
		return nil, ErrBadSnapshot
	}
	for i := 0; i < len(interleaved); i += 2 {
		data.Indexes = append(data.Indexes, IndexKey{Label: interleaved[i], Property: interleaved[i+1]})
	}

	// The counts live in the footer; the hash already validated, so read
	// them from the tail before walking the records.
	vertexCount, edgeCount, err := readFooterCounts(content)
	if err != nil {
		return nil, err
	}

	for i := int64(0); i < vertexCount; i++ {
		g, err := r.int64()
		if err != nil {
			return nil, err
		}
		labels, err := r.stringList()
		if err != nil {
			return nil, err
		}
		props, err := r.properties()
		if err != nil {
			return nil, err
		}
		data.Vertices = append(data.Vertices, Vertex{Gid: gid.Gid(g), Labels: labels, Properties: props})
	}
	for i := int64(0); i < edgeCount; i++ {
		g, err := r.int64()
		if err != nil {
			return nil, err
		}
		from, err := r.int64()
		if err != nil {
			return nil, err
		}
		to, err := r.int64()
		if err != nil {
			return nil, err
		}
		etVal, err := r.value()
		if err != nil {
			return nil, err
		}
		et, err := etVal.String_()
		if err != nil {
			return nil, ErrBadSnapshot
		}
		props, err := r.properties()
		if err != nil {
			return nil, err
		}
		data.Edges = append(data.Edges, Edge{
			Gid: gid.Gid(g), From: gid.Gid(from), To: gid.Gid(to),
			EdgeType: et, Properties: props,
		})
	}
	return data, nil
}

// readFooterCounts decodes the two trailing Int values before the hash.
// Int values have a fixed 9-byte encoding, which is what makes reading
// the footer from the tail possible.
func readFooterCounts(content []byte) (vertexCount, edgeCount int64, err error) {
	const intSize = 9 // tag byte + 8 bytes big-endian payload
	if len(content) < 2*intSize {
		return 0, 0, ErrBadSnapshot
	}
	tail := &reader{data: content, pos: len(content) - 2*intSize}
	vertexCount, err = tail.int64()
	if err != nil {
		return 0, 0, err
	}
	edgeCount, err = tail.int64()
	if err != nil {
		return 0, 0, err
	}
	if vertexCount < 0 || edgeCount < 0 {
		return 0, 0, ErrBadSnapshot
	}
	return vertexCount, edgeCount, nil
}

// List returns every snapshot file in dir, newest first.
func List(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() && path.Ext(info.Name()) == ".snapshot" {
			names = append(names, info.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = path.Join(dir, n)
	}
	return paths, nil
}
