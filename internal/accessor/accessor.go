package accessor

import (
	"github.com/infgeoax/memgraph/internal/txn"
	"github.com/infgeoax/memgraph/internal/values"
	"github.com/infgeoax/memgraph/internal/wal"
)

// Accessor ties one transaction to the storage. It is short-lived, owned
// by a single goroutine, and must end in exactly one of Commit, Abort, or
// Close (which aborts an unfinished transaction).
type Accessor struct {
	storage  *Storage
	tx       *txn.Transaction
	finished bool
}

// Tx returns the underlying transaction.
func (a *Accessor) Tx() *txn.Transaction { return a.tx }

func (a *Accessor) check() error {
	if a.finished {
		return ErrFinished
	}
	return nil
}

func (a *Accessor) clog() *txn.CommitLog { return a.storage.engine.CommitLog() }

// AdvanceCommand bumps the transaction's command counter, making earlier
// writes visible to subsequent reads in this transaction.
func (a *Accessor) AdvanceCommand() error {
	if err := a.check(); err != nil {
		return err
	}
	_, err := a.tx.Advance()
	return err
}

// Commit ends the transaction successfully.
func (a *Accessor) Commit() error {
	if err := a.check(); err != nil {
		return err
	}
	a.finished = true
	return a.storage.engine.Commit(a.tx)
}

// Abort ends the transaction, discarding its writes from every future
// reader's view.
func (a *Accessor) Abort() error {
	if err := a.check(); err != nil {
		return err
	}
	a.finished = true
	return a.storage.engine.Abort(a.tx)
}

// Close aborts the transaction if the accessor was abandoned without
// committing. Safe to defer unconditionally.
func (a *Accessor) Close() error {
	if a.finished {
		return nil
	}
	return a.Abort()
}

// ShouldAbort reports whether cooperative cancellation was requested;
// query execution checks it at command boundaries.
func (a *Accessor) ShouldAbort() bool { return a.tx.ShouldAbort() }

// Counter atomically adds delta to the named counter and returns the
// previous value. Counters are non-transactional and durable: the
// resulting value is logged to the WAL immediately.
func (a *Accessor) Counter(name string, delta int64) (int64, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	prev := a.storage.counters.Get(name, delta)
	err := a.storage.appendDelta(&wal.Delta{
		Kind:  wal.KindCounterSet,
		Tx:    a.tx.ID(),
		Name:  name,
		Value: values.NewInt(prev + delta),
	})
	return prev, err
}
