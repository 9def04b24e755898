package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/infgeoax/memgraph/internal/encoding"
	"github.com/infgeoax/memgraph/internal/txn"
)

// WAL segment format: an 8-byte header (magic + version), then zero or
// more entries. Each entry is
//
//	varint payload length || payload || CRC-32 of the payload (4 bytes, LE)
//
// where the payload is Delta.Encode output. A short read anywhere in an
// entry is a tolerated partial tail; a checksum mismatch ends replay the
// same way.
const (
	// Magic identifies a WAL segment file.
	Magic = "MGWL"

	// FormatVersion is the segment format version.
	FormatVersion = 1

	headerSize = 8

	// CurrentSegment is the name of the segment being appended to. Rotated
	// segments carry their max transaction id instead.
	CurrentSegment = "current.wal"

	// DefaultRotateSize is the segment size past which the writer rotates.
	DefaultRotateSize = 4 << 20
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// SegmentName builds a rotated segment's filename. The zero-padded
// rotation sequence comes first so lexicographic order is always the
// append order, even when a long-running transaction leaves a segment
// whose max tx id trails its predecessor's; the max tx id follows so
// recovery can skip whole segments below its snapshot boundary without
// opening them. The generation id tells two durability directories apart.
func SegmentName(maxTx txn.TxID, seq uint64, generation uuid.UUID) string {
	return fmt.Sprintf("wal_%06d_%020d_%s.wal", seq, uint64(maxTx), generation)
}

// Writer appends deltas to the current segment, rotating it once it grows
// past the configured size. Appends are serialized internally: the engine
// writes begin/commit/abort while holding its lock, data deltas arrive
// concurrently from transaction goroutines.
type Writer struct {
	fs         afero.Fs
	dir        string
	rotateSize int64
	generation uuid.UUID
	log        zerolog.Logger

	mu    sync.Mutex
	file  afero.File
	size  int64
	maxTx txn.TxID
	seq   uint64
	buf   []byte
}

var _ txn.DeltaSink = (*Writer)(nil)

// WriterOptions configures a Writer.
type WriterOptions struct {
	RotateSize int64
	Logger     zerolog.Logger
}

// NewWriter opens a WAL writer in dir, creating the directory and the
// current segment.
func NewWriter(fs afero.Fs, dir string, opts WriterOptions) (*Writer, error) {
	if opts.RotateSize == 0 {
		opts.RotateSize = DefaultRotateSize
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &Writer{
		fs:         fs,
		dir:        dir,
		rotateSize: opts.RotateSize,
		generation: uuid.New(),
		log:        opts.Logger.With().Str("component", "wal").Logger(),
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openCurrent() error {
	f, err := w.fs.OpenFile(path.Join(w.dir, CurrentSegment), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.LittleEndian.PutUint32(header[4:], FormatVersion)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = headerSize
	w.maxTx = txn.NoTx
	return nil
}

// Generation returns the writer's generation id, stamped into rotated
// segment names.
func (w *Writer) Generation() uuid.UUID { return w.generation }

// Append encodes d, writes it to the current segment, and fsyncs on
// commit deltas. The segment rotates once it exceeds the size threshold.
func (w *Writer) Append(d *Delta) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload := d.Encode(w.buf[:0])
	var lenBuf [16]byte
	n := encoding.PutVarint(lenBuf[:], uint64(len(payload)))

	entry := append(lenBuf[:n], payload...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc32.Checksum(payload, crcTable))
	entry = append(entry, crcBuf[:]...)

	if _, err := w.file.Write(entry); err != nil {
		return err
	}
	w.buf = payload[:0]
	w.size += int64(len(entry))
	if d.Tx > w.maxTx {
		w.maxTx = d.Tx
	}

	if d.Kind == KindTxCommit {
		if err := w.file.Sync(); err != nil {
			return err
		}
	}

	if w.size >= w.rotateSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	return nil
}

// rotate finalizes the current segment under its max-tx name and starts a
// fresh one. Called with the writer lock held.
func (w *Writer) rotate() error {
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	final := path.Join(w.dir, SegmentName(w.maxTx, w.seq, w.generation))
	if err := w.fs.Rename(path.Join(w.dir, CurrentSegment), final); err != nil {
		return err
	}
	w.seq++
	w.log.Debug().Str("segment", final).Msg("rotated wal segment")
	return w.openCurrent()
}

// TxBegin implements txn.DeltaSink.
func (w *Writer) TxBegin(id txn.TxID) error {
	return w.Append(&Delta{Kind: KindTxBegin, Tx: id})
}

// TxCommit implements txn.DeltaSink.
func (w *Writer) TxCommit(id txn.TxID) error {
	return w.Append(&Delta{Kind: KindTxCommit, Tx: id})
}

// TxAbort implements txn.DeltaSink.
func (w *Writer) TxAbort(id txn.TxID) error {
	return w.Append(&Delta{Kind: KindTxAbort, Tx: id})
}

// Flush fsyncs the current segment.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close syncs and closes the current segment, finalizing its name when it
// holds any deltas.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if w.size > headerSize {
		final := path.Join(w.dir, SegmentName(w.maxTx, w.seq, w.generation))
		if err := w.fs.Rename(path.Join(w.dir, CurrentSegment), final); err != nil {
			return err
		}
	} else {
		w.fs.Remove(path.Join(w.dir, CurrentSegment))
	}
	w.file = nil
	return nil
}

// ListSegments returns every segment in dir in replay order: rotated
// segments sorted by name (and therefore by rotation sequence), then the current
// segment if one exists.
func ListSegments(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var rotated []string
	current := false
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		switch {
		case info.Name() == CurrentSegment:
			current = true
		case path.Ext(info.Name()) == ".wal":
			rotated = append(rotated, info.Name())
		}
	}
	sort.Strings(rotated)
	names := make([]string, 0, len(rotated)+1)
	for _, n := range rotated {
		names = append(names, path.Join(dir, n))
	}
	if current {
		names = append(names, path.Join(dir, CurrentSegment))
	}
	return names, nil
}

// ForEachDelta replays one segment, calling fn for every intact delta.
// It reports whether the segment ended cleanly: a truncated tail, a
// checksum mismatch, or an unknown kind stops the walk and returns
// complete=false without an error, per the lenient-tail recovery policy.
// Errors from fn abort the walk and are returned as-is.
func ForEachDelta(fs afero.Fs, filename string, fn func(Delta) error) (complete bool, err error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return false, err
	}
	if len(data) < headerSize || string(data[:4]) != Magic {
		return false, fmt.Errorf("wal: %s: bad segment header", filename)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return false, fmt.Errorf("wal: %s: unsupported format version %d", filename, v)
	}

	pos := headerSize
	for pos < len(data) {
		length, n := encoding.GetVarint(data[pos:])
		if n == 0 || pos+n+int(length)+4 > len(data) {
			return false, nil
		}
		payload := data[pos+n : pos+n+int(length)]
		stored := binary.LittleEndian.Uint32(data[pos+n+int(length):])
		if crc32.Checksum(payload, crcTable) != stored {
			return false, nil
		}
		d, derr := DecodeDelta(payload)
		if derr != nil {
			return false, nil
		}
		if err := fn(d); err != nil {
			return false, err
		}
		pos += n + int(length) + 4
	}
	return true, nil
}

