// Package recovery implements the startup pipeline: replay the newest
// valid snapshot into a single transaction, then replay the WAL segments
// on top of it, tolerating partial tails, and finally rebuild the indexes.
package recovery

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/infgeoax/memgraph/internal/accessor"
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/snapshot"
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/wal"
)

// Outcome is the tri-state recovery result.
type Outcome int

const (
	// Fully means every snapshot and WAL byte was applied.
	Fully Outcome = iota
	// Partial means a truncated or corrupt WAL tail (or an older-than-
	// newest snapshot) was tolerated; the recovered state is a prefix of
	// some serialization of the committed transactions.
	Partial
	// Failed means recovery could not produce a usable state.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Fully:
		return "Fully"
	case Partial:
		return "Partial"
	default:
		return "Failed"
	}
}

// Result describes what a recovery run restored.
type Result struct {
	Outcome      Outcome
	SnapshotFile string
	Vertices     int
	Edges        int
	Deltas       int
}

// Recover restores s from the durability directory: snapDir for snapshot
// files and walDir for WAL segments. The storage must be fresh and must
// not have its WAL attached yet.
func Recover(fs afero.Fs, s *accessor.Storage, snapDir, walDir string, log zerolog.Logger) (*Result, error) {
	log = log.With().Str("component", "recovery").Logger()
	res := &Result{Outcome: Fully}

	snapTxID, activeAtSnapshot, snapIndexes, err := recoverSnapshot(fs, s, snapDir, log, res)
	if err != nil {
		res.Outcome = Failed
		return res, err
	}

	if err := replayWal(fs, s, walDir, snapTxID, activeAtSnapshot, snapIndexes, log, res); err != nil {
		res.Outcome = Failed
		return res, err
	}

	log.Info().
		Str("outcome", res.Outcome.String()).
		Int("vertices", res.Vertices).
		Int("edges", res.Edges).
		Int("deltas", res.Deltas).
		Msg("recovery finished")
	return res, nil
}

// recoverSnapshot finds the newest snapshot that validates and replays it
// under one transaction. It returns the snapshotter's tx id and snapshot
// set, which bound what the WAL replay may apply.
func recoverSnapshot(fs afero.Fs, s *accessor.Storage, snapDir string, log zerolog.Logger, res *Result) (txn.TxID, txn.Snapshot, []snapshot.IndexKey, error) {
	files, err := snapshot.List(fs, snapDir)
	if err != nil {
		return txn.NoTx, txn.Snapshot{}, nil, err
	}

	for i, file := range files {
		data, err := snapshot.Read(fs, file)
		if err != nil {
			// Strict on snapshots: anything that fails the hash is skipped
			// and the previous one is tried.
			log.Warn().Str("file", file).Err(err).Msg("snapshot rejected, trying older one")
			res.Outcome = Partial
			continue
		}
		if i > 0 {
			res.Outcome = Partial
		}
		if err := applySnapshot(s, data); err != nil {
			return txn.NoTx, txn.Snapshot{}, nil, err
		}
		res.SnapshotFile = file
		res.Vertices = len(data.Vertices)
		res.Edges = len(data.Edges)
		log.Info().Str("file", file).Msg("snapshot replayed")
		return data.TxID, txn.NewSnapshot(data.TxSnapshot), data.Indexes, nil
	}
	return txn.NoTx, txn.Snapshot{}, nil, nil
}

func applySnapshot(s *accessor.Storage, data *snapshot.Data) error {
	s.VertexGenerator().SetHighWatermark(data.VertexGenHigh)
	s.EdgeGenerator().SetHighWatermark(data.EdgeGenHigh)

	// Replaying under the snapshotter's own id keeps the engine counter
	// clear of every id the WAL replay may re-instantiate.
	t, err := s.Engine().BeginWithID(data.TxID)
	if err != nil {
		return err
	}
	acc := s.AccessWith(t)
	defer acc.Close()

	byGid := make(map[gid.Gid]*accessor.VertexRef, len(data.Vertices))
	for _, v := range data.Vertices {
		g := v.Gid
		ref, err := acc.InsertVertex(&g)
		if err != nil {
			return err
		}
		for _, label := range v.Labels {
			if err := acc.AddLabel(ref, label); err != nil {
				return err
			}
		}
		for key, val := range v.Properties {
			if err := acc.SetProperty(ref, key, val); err != nil {
				return err
			}
		}
		byGid[g] = ref
	}
	for _, e := range data.Edges {
		from, to := byGid[e.From], byGid[e.To]
		if from == nil || to == nil {
			return fmt.Errorf("recovery: edge %s references missing vertex", e.Gid)
		}
		g := e.Gid
		ref, err := acc.InsertEdge(from, to, e.EdgeType, &g)
		if err != nil {
			return err
		}
		for key, val := range e.Properties {
			if err := acc.SetEdgeProperty(ref, key, val); err != nil {
				return err
			}
		}
	}

	return acc.Commit()
}

func replayWal(fs afero.Fs, s *accessor.Storage, walDir string, snapTxID txn.TxID, activeAtSnapshot txn.Snapshot, pendingIndexes []snapshot.IndexKey, log zerolog.Logger, res *Result) error {
	segments, err := wal.ListSegments(fs, walDir)
	if err != nil {
		if isNotExist(err) {
			segments = nil
		} else {
			return err
		}
	}

	// A delta is recoverable when its transaction either began after the
	// snapshot was taken or was still active at snapshot time.
	keep := func(id txn.TxID) bool {
		return id > snapTxID || activeAtSnapshot.Contains(id)
	}

	accs := make(map[txn.TxID]*accessor.Accessor)
	apply := func(d wal.Delta) error {
		res.Deltas++
		switch d.Kind {
		case wal.KindTxBegin:
			if !keep(d.Tx) {
				return nil
			}
			t, err := s.Engine().BeginWithID(d.Tx)
			if err != nil {
				return err
			}
			accs[d.Tx] = s.AccessWith(t)
			return nil
		case wal.KindTxCommit:
			if acc, ok := accs[d.Tx]; ok {
				delete(accs, d.Tx)
				return acc.Commit()
			}
			return nil
		case wal.KindTxAbort:
			if acc, ok := accs[d.Tx]; ok {
				delete(accs, d.Tx)
				return acc.Abort()
			}
			return nil
		case wal.KindBuildIndex:
			if keep(d.Tx) {
				pendingIndexes = append(pendingIndexes, snapshot.IndexKey{Label: d.Name, Property: d.Property})
			}
			return nil
		case wal.KindCounterSet:
			val, err := d.Value.Int()
			if err != nil {
				return err
			}
			s.Counters().Set(d.Name, val)
			return nil
		}

		if !keep(d.Tx) {
			return nil
		}
		acc, ok := accs[d.Tx]
		if !ok {
			// A data delta for a recoverable transaction with no begin
			// record means the log is corrupt beyond the lenient-tail
			// policy. Fatal invariant violation.
			panic(fmt.Sprintf("recovery: delta %s for tx %d without accessor", d.Kind, d.Tx))
		}
		return applyDataDelta(acc, d)
	}

	for _, seg := range segments {
		complete, err := wal.ForEachDelta(fs, seg, apply)
		if err != nil {
			return err
		}
		if !complete {
			// Truncated tail: stop replaying here, per the lenient policy.
			log.Warn().Str("segment", seg).Msg("partial wal tail, stopping replay")
			res.Outcome = Partial
			break
		}
	}

	// Transactions with no terminal delta were in flight at the crash;
	// they abort so their writes stay invisible.
	for id, acc := range accs {
		log.Debug().Uint64("tx", uint64(id)).Msg("aborting unfinished recovered transaction")
		acc.Abort()
	}

	// Rebuild indexes under a final accessor.
	if len(pendingIndexes) > 0 {
		final, err := s.Access()
		if err != nil {
			return err
		}
		defer final.Close()
		seen := make(map[snapshot.IndexKey]struct{})
		for _, key := range pendingIndexes {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if err := final.BuildIndex(key.Label, key.Property); err != nil {
				return err
			}
		}
		if err := final.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func applyDataDelta(acc *accessor.Accessor, d wal.Delta) error {
	switch d.Kind {
	case wal.KindCreateVertex:
		g := d.Gid
		_, err := acc.InsertVertex(&g)
		return err
	case wal.KindRemoveVertex:
		v, err := acc.FindVertex(d.Gid, true)
		if err != nil || v == nil {
			return err
		}
		_, err = acc.RemoveVertex(v)
		return err
	case wal.KindCreateEdge:
		from, err := acc.FindVertex(d.From, true)
		if err != nil {
			return err
		}
		to, err := acc.FindVertex(d.To, true)
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return fmt.Errorf("recovery: edge %s references missing vertex", d.Gid)
		}
		g := d.Gid
		_, err = acc.InsertEdge(from, to, d.Name, &g)
		return err
	case wal.KindRemoveEdge:
		e, err := acc.FindEdge(d.Gid, true)
		if err != nil || e == nil {
			return err
		}
		return acc.RemoveEdge(e, true, true)
	case wal.KindSetProperty:
		if d.OnVertex {
			v, err := acc.FindVertex(d.Gid, true)
			if err != nil || v == nil {
				return err
			}
			return acc.SetProperty(v, d.Name, d.Value)
		}
		e, err := acc.FindEdge(d.Gid, true)
		if err != nil || e == nil {
			return err
		}
		return acc.SetEdgeProperty(e, d.Name, d.Value)
	case wal.KindAddLabel:
		v, err := acc.FindVertex(d.Gid, true)
		if err != nil || v == nil {
			return err
		}
		return acc.AddLabel(v, d.Name)
	case wal.KindRemoveLabel:
		v, err := acc.FindVertex(d.Gid, true)
		if err != nil || v == nil {
			return err
		}
		return acc.RemoveLabel(v, d.Name)
	default:
		return wal.ErrUnknownKind
	}
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
