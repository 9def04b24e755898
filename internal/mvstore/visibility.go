package mvstore

import "github.com/infgeoax/memgraph/internal/txn"

// Visible implements the MVCC visibility rule for one version, described by
// its four stamps, against reader t at its current command.
//
// The creating transaction must be either t itself (at this or an earlier
// command) or a transaction that committed before t began: committed in the
// commit log, not in t's snapshot, and with a smaller id (ids are
// monotonic, so anything larger began after t and cannot have committed
// before it).
//
// An expiration hides the version only when it, too, happened before t's
// view: by t itself at an earlier-or-equal command, or by a transaction
// committed before t began. Expirations by aborted transactions, by
// still-active transactions, by snapshot members, or at a later command of
// t leave the version visible.
func Visible(txCre txn.TxID, cmdCre txn.CmdID, txExp txn.TxID, cmdExp txn.CmdID,
	t *txn.Transaction, clog *txn.CommitLog, ownWrites bool) bool {

	cmd := t.Cmd()
	snap := t.Snapshot()

	switch {
	case txCre == t.ID():
		if !ownWrites || cmdCre > cmd {
			return false
		}
	case clog.IsCommitted(txCre) && !snap.Contains(txCre) && txCre < t.ID():
		// Committed before t began.
	default:
		return false
	}

	if txExp == txn.NoTx {
		return true
	}
	if txExp == t.ID() {
		// Expired by t itself: hidden from the commands at or past the
		// expiration, unless the reader asked for the begin-time view.
		if !ownWrites {
			return true
		}
		return cmdExp > cmd
	}
	if clog.IsCommitted(txExp) && !snap.Contains(txExp) && txExp < t.ID() {
		return false
	}
	return true
}
