package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginAssignsMonotonicIds(t *testing.T) {
	e := NewEngine(nil)
	t1, err := e.Begin()
	require.NoError(t, err)
	t2, err := e.Begin()
	require.NoError(t, err)
	assert.Equal(t, TxID(1), t1.ID())
	assert.Equal(t, TxID(2), t2.ID())
	assert.Equal(t, TxID(2), e.LocalLast())
}

func TestSnapshotCapturesActiveSet(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t2, _ := e.Begin()

	assert.True(t, t1.Snapshot().Empty())
	assert.True(t, t2.Snapshot().Contains(t1.ID()))
	assert.False(t, t2.Snapshot().Contains(t2.ID()))

	// The snapshot is immutable for the transaction's lifetime.
	require.NoError(t, e.Commit(t1))
	assert.True(t, t2.Snapshot().Contains(t1.ID()))
}

func TestCommitAbortStates(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t2, _ := e.Begin()

	assert.Equal(t, StateActive, e.Info(t1.ID()))

	require.NoError(t, e.Commit(t1))
	require.NoError(t, e.Abort(t2))

	assert.Equal(t, StateCommitted, e.Info(t1.ID()))
	assert.Equal(t, StateAborted, e.Info(t2.ID()))
	assert.Equal(t, StateUnknown, e.Info(999))

	// Terminal states are absorbing.
	assert.ErrorIs(t, e.Commit(t1), ErrNotActive)
	assert.ErrorIs(t, e.Abort(t1), ErrNotActive)
	assert.Equal(t, StateCommitted, e.Info(t1.ID()))
}

func TestGlobalActiveAndGcSnapshot(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t2, _ := e.Begin()

	active := e.GlobalActiveTransactions()
	assert.True(t, active.Contains(t1.ID()))
	assert.True(t, active.Contains(t2.ID()))

	gc := e.GlobalGcSnapshot()
	assert.Equal(t, t1.ID(), gc.Oldest())
	assert.True(t, gc.Contains(e.LocalLast()+1))

	require.NoError(t, e.Commit(t1))
	require.NoError(t, e.Commit(t2))

	gc = e.GlobalGcSnapshot()
	assert.Equal(t, e.LocalLast()+1, gc.Oldest())
}

func TestGcSnapshotIncludesOldestReadersView(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t2, _ := e.Begin() // t2's snapshot contains t1
	require.NoError(t, e.Commit(t1))

	// t2 is now the oldest active transaction; its snapshot must keep t1
	// uncollectible even though t1 committed.
	gc := e.GlobalGcSnapshot()
	assert.True(t, gc.Contains(t1.ID()))
	assert.True(t, gc.Contains(t2.ID()))
}

func TestForEachActiveOrdered(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t2, _ := e.Begin()
	t3, _ := e.Begin()
	require.NoError(t, e.Commit(t2))

	var got []TxID
	e.ForEachActive(func(id TxID) { got = append(got, id) })
	assert.Equal(t, []TxID{t1.ID(), t3.ID()}, got)
}

func TestAdvanceCommandCounter(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	assert.Equal(t, CmdID(1), t1.Cmd())

	cmd, err := e.Advance(t1.ID())
	require.NoError(t, err)
	assert.Equal(t, CmdID(2), cmd)

	cur, err := e.UpdateCommand(t1.ID())
	require.NoError(t, err)
	assert.Equal(t, CmdID(2), cur)
}

func TestCommandOverflowIsFatalButAbortable(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	t1.cmd = MaxCmdID

	_, err := t1.Advance()
	assert.ErrorIs(t, err, ErrCmdOverflow)

	// The transaction stays abortable.
	require.NoError(t, e.Abort(t1))
	assert.Equal(t, StateAborted, e.Info(t1.ID()))
}

func TestBeginWithIDRaisesCounter(t *testing.T) {
	e := NewEngine(nil)
	t7, err := e.BeginWithID(7)
	require.NoError(t, err)
	assert.Equal(t, TxID(7), t7.ID())

	t8, err := e.Begin()
	require.NoError(t, err)
	assert.Equal(t, TxID(8), t8.ID())
}

func TestListeners(t *testing.T) {
	e := NewEngine(nil)
	var events []State
	e.RegisterListener(func(_ TxID, s State) { events = append(events, s) })

	t1, _ := e.Begin()
	t2, _ := e.Begin()
	require.NoError(t, e.Commit(t1))
	require.NoError(t, e.Abort(t2))

	assert.Equal(t, []State{StateCommitted, StateAborted}, events)
}

func TestShouldAbortFlag(t *testing.T) {
	e := NewEngine(nil)
	t1, _ := e.Begin()
	assert.False(t, t1.ShouldAbort())
	t1.SetShouldAbort()
	assert.True(t, t1.ShouldAbort())
}
