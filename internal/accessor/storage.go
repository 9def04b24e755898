// Package accessor implements the storage API: every interaction with the
// graph goes through an Accessor bound to exactly one transaction. Reads
// traverse version chains with the engine's visibility function; writes
// install new record versions, maintain the indexes, and emit state deltas
// to the WAL.
package accessor

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/nameid"
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/wal"
)

// ErrFinished is returned by every operation on an accessor whose
// transaction already committed or aborted.
var ErrFinished = errors.New("accessor: transaction already finished")

// Storage owns the version-chain maps, the id registry, the indexes, the
// counters, and the gid generators, and hands out accessors bound to
// engine transactions. It is the single-node storage of one worker.
type Storage struct {
	engine *txn.SingleNodeEngine

	vertices mvstore.VertexMap
	edges    mvstore.EdgeMap

	names    *nameid.Mapper
	labelIdx *index.LabelIndex
	propIdx  *index.Registry
	counters mvstore.Counters

	vertexGen *gid.Generator
	edgeGen   *gid.Generator

	// wal is attached after recovery finishes so replay does not re-log
	// the deltas it applies. A nil pointer disables durability.
	wal atomic.Pointer[wal.Writer]
	log zerolog.Logger
}

// storageSink forwards the engine's begin/commit/abort deltas to the
// currently attached WAL writer.
type storageSink struct {
	s *Storage
}

func (k storageSink) TxBegin(id txn.TxID) error {
	if w := k.s.wal.Load(); w != nil {
		return w.TxBegin(id)
	}
	return nil
}

func (k storageSink) TxCommit(id txn.TxID) error {
	if w := k.s.wal.Load(); w != nil {
		return w.TxCommit(id)
	}
	return nil
}

func (k storageSink) TxAbort(id txn.TxID) error {
	if w := k.s.wal.Load(); w != nil {
		return w.TxAbort(id)
	}
	return nil
}

// Options configures a Storage.
type Options struct {
	WorkerID int
	Wal      *wal.Writer
	Logger   zerolog.Logger
}

// NewStorage creates a storage whose engine emits its transaction deltas
// to the given WAL writer (nil disables durability; AttachWal enables it
// later, which is how recovery avoids re-logging replayed deltas).
func NewStorage(opts Options) *Storage {
	s := &Storage{
		names:     nameid.New(),
		labelIdx:  index.NewLabelIndex(),
		propIdx:   index.NewRegistry(),
		vertexGen: gid.NewGenerator(opts.WorkerID),
		edgeGen:   gid.NewGenerator(opts.WorkerID),
		log:       opts.Logger.With().Str("component", "storage").Logger(),
	}
	s.engine = txn.NewEngine(storageSink{s})
	if opts.Wal != nil {
		s.wal.Store(opts.Wal)
	}
	return s
}

// AttachWal starts logging state deltas to w. Called once recovery has
// replayed the previous log.
func (s *Storage) AttachWal(w *wal.Writer) {
	s.wal.Store(w)
}

// Engine exposes the transaction engine.
func (s *Storage) Engine() *txn.SingleNodeEngine { return s.engine }

// Names exposes the id registry.
func (s *Storage) Names() *nameid.Mapper { return s.names }

// Vertices exposes the vertex chain map; the collector walks it.
func (s *Storage) Vertices() *mvstore.VertexMap { return &s.vertices }

// Edges exposes the edge chain map; the collector walks it.
func (s *Storage) Edges() *mvstore.EdgeMap { return &s.edges }

// LabelIndex exposes the label index; the cleaner sweeps it.
func (s *Storage) LabelIndex() *index.LabelIndex { return s.labelIdx }

// PropIndexes exposes the label-property index registry.
func (s *Storage) PropIndexes() *index.Registry { return s.propIdx }

// Counters exposes the named counter table.
func (s *Storage) Counters() *mvstore.Counters { return &s.counters }

// VertexGenerator exposes the vertex gid generator.
func (s *Storage) VertexGenerator() *gid.Generator { return s.vertexGen }

// EdgeGenerator exposes the edge gid generator.
func (s *Storage) EdgeGenerator() *gid.Generator { return s.edgeGen }

// appendDelta writes a data delta to the WAL, if durability is on. Data
// deltas are written outside the engine lock; recovery tolerates the
// resulting interleavings from concurrent transactions.
func (s *Storage) appendDelta(d *wal.Delta) error {
	if w := s.wal.Load(); w != nil {
		return w.Append(d)
	}
	return nil
}

// Access begins a fresh transaction and returns its accessor. Callers that
// do not reach Commit or Abort must Close the accessor, which aborts the
// transaction.
func (s *Storage) Access() (*Accessor, error) {
	t, err := s.engine.Begin()
	if err != nil {
		return nil, err
	}
	return &Accessor{storage: s, tx: t}, nil
}

// AccessWith wraps an already begun transaction, typically one replayed
// under its original id during recovery.
func (s *Storage) AccessWith(t *txn.Transaction) *Accessor {
	return &Accessor{storage: s, tx: t}
}
