package mvstore

import (
	"sync/atomic"

	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/txn"
)

// record constrains version chains to the two record kinds; Clone is how a
// new version diverges from the one it supersedes.
type record[R any] interface {
	Clone() R
}

// Version is one node in a version chain. The creating stamps and the next
// pointer are immutable after publication; the expiring stamps are written
// once, by the single transaction that wins the expiration CAS.
type Version[R record[R]] struct {
	rec    R
	txCre  txn.TxID
	cmdCre txn.CmdID

	txExp  uint64 // atomic; 0 while not expired
	cmdExp uint64 // atomic; written by the expiration winner only

	next *Version[R] // older version, nil at the tail
}

// Record returns the payload of this version. Callers may mutate it only
// while the owning transaction is the creator and the version is current.
func (v *Version[R]) Record() R { return v.rec }

// TxCreated returns the creating transaction id.
func (v *Version[R]) TxCreated() txn.TxID { return v.txCre }

// CmdCreated returns the creating command id.
func (v *Version[R]) CmdCreated() txn.CmdID { return v.cmdCre }

// TxExpired returns the expiring transaction id, 0 when not expired.
func (v *Version[R]) TxExpired() txn.TxID {
	return txn.TxID(atomic.LoadUint64(&v.txExp))
}

// CmdExpired returns the expiring command id.
func (v *Version[R]) CmdExpired() txn.CmdID {
	return txn.CmdID(atomic.LoadUint64(&v.cmdExp))
}

// Next returns the next older version.
func (v *Version[R]) Next() *Version[R] { return v.next }

// VersionList is the single mutation point for one entity: a Gid plus the
// head of a singly linked chain of versions, newest first. The head pointer
// and the expiration stamps are the only mutable cells, both driven by CAS.
type VersionList[R record[R]] struct {
	gid  gid.Gid
	head atomic.Pointer[Version[R]]
}

// NewVersionList creates a chain whose first version is stamped with the
// inserting transaction.
func NewVersionList[R record[R]](g gid.Gid, rec R, t *txn.Transaction) *VersionList[R] {
	vl := &VersionList[R]{gid: g}
	v := &Version[R]{rec: rec, txCre: t.ID(), cmdCre: t.Cmd()}
	vl.head.Store(v)
	return vl
}

// Gid returns the entity id this chain belongs to.
func (vl *VersionList[R]) Gid() gid.Gid { return vl.gid }

// Head returns the newest version.
func (vl *VersionList[R]) Head() *Version[R] { return vl.head.Load() }

// FindVisible walks the chain and returns the single version visible to t,
// or nil when none is. With ownWrites false the walk ignores t's own
// uncommitted changes, yielding the state as of transaction begin.
func (vl *VersionList[R]) FindVisible(t *txn.Transaction, clog *txn.CommitLog, ownWrites bool) *Version[R] {
	for v := vl.head.Load(); v != nil; v = v.next {
		if Visible(v.txCre, v.cmdCre, v.TxExpired(), v.CmdExpired(), t, clog, ownWrites) {
			return v
		}
	}
	return nil
}

// expire claims the expiration stamp of v for t. Exactly one transaction
// wins; losers get ErrSerialization. An expiration left behind by an
// aborted transaction is reclaimable.
func (vl *VersionList[R]) expire(v *Version[R], t *txn.Transaction, clog *txn.CommitLog) error {
	for {
		cur := atomic.LoadUint64(&v.txExp)
		switch {
		case cur == uint64(t.ID()):
			// Already expired by this very transaction.
			return ErrRecordDeleted
		case cur != 0 && !clog.IsAborted(txn.TxID(cur)):
			return ErrSerialization
		}
		if atomic.CompareAndSwapUint64(&v.txExp, cur, uint64(t.ID())) {
			atomic.StoreUint64(&v.cmdExp, uint64(t.Cmd()))
			return nil
		}
		// Lost the CAS to a concurrent writer.
		return ErrSerialization
	}
}

// Update prepares the chain for a mutation by t and returns the version
// whose record the caller may write to. If the current head already belongs
// to t the head is reused (double modification by one transaction
// coalesces); otherwise the visible version is expired and cloned into a
// new head.
func (vl *VersionList[R]) Update(t *txn.Transaction, clog *txn.CommitLog) (*Version[R], error) {
	head := vl.head.Load()
	if head == nil {
		return nil, ErrRecordDeleted
	}

	if head.txCre == t.ID() && head.TxExpired() == txn.NoTx {
		return head, nil
	}

	visible := vl.FindVisible(t, clog, true)
	if visible == nil {
		return nil, ErrRecordDeleted
	}

	if err := vl.expire(visible, t, clog); err != nil {
		return nil, err
	}

	next := &Version[R]{
		rec:    visible.rec.Clone(),
		txCre:  t.ID(),
		cmdCre: t.Cmd(),
		next:   head,
	}
	if !vl.head.CompareAndSwap(head, next) {
		return nil, ErrSerialization
	}
	return next, nil
}

// Remove logically deletes the entity for t: the current head is expired
// with no successor installed. Removing an already removed entity by the
// same transaction reports ErrRecordDeleted.
func (vl *VersionList[R]) Remove(t *txn.Transaction, clog *txn.CommitLog) error {
	head := vl.head.Load()
	if head == nil {
		return ErrRecordDeleted
	}
	if vl.FindVisible(t, clog, true) == nil {
		return ErrRecordDeleted
	}
	return vl.expire(head, t, clog)
}

// Prune unlinks every version strictly below what any transaction at or
// beyond the GC snapshot could still see. It returns the number of versions
// unlinked; when the whole chain is gone the list itself is collectible.
// Only the background collector calls this, and only versions invisible to
// every possible future reader are touched, so the plain next rewrites are
// safe: no reader can be walking past the oldest visible version.
func (vl *VersionList[R]) Prune(snapshot txn.Snapshot, clog *txn.CommitLog) int {
	oldestReader := snapshot.Oldest()
	head := vl.head.Load()
	if head == nil || oldestReader == txn.NoTx {
		return 0
	}

	// Whole-chain reclamation: the newest version is already expired by a
	// transaction no future reader can miss.
	if exp := head.TxExpired(); exp != txn.NoTx &&
		clog.IsCommitted(exp) && exp < oldestReader && !snapshot.Contains(exp) {
		if vl.head.CompareAndSwap(head, nil) {
			return chainLen(head)
		}
		return 0
	}

	// Otherwise keep the first version every possible reader would settle
	// on and cut everything older.
	pruned := 0
	for v := head; v != nil; v = v.next {
		if v.next == nil {
			break
		}
		if clog.IsCommitted(v.txCre) && v.txCre < oldestReader && !snapshot.Contains(v.txCre) {
			pruned += chainLen(v.next)
			v.next = nil
			break
		}
	}
	return pruned
}

func chainLen[R record[R]](v *Version[R]) int {
	n := 0
	for ; v != nil; v = v.next {
		n++
	}
	return n
}

// Orphaned reports whether the chain holds no versions anymore.
func (vl *VersionList[R]) Orphaned() bool {
	return vl.head.Load() == nil
}
