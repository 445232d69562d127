package arena

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/txrecord"
	"github.com/stretchr/testify/assert"
)

func makeTx(tick uint32) *txrecord.Transaction {
	return &txrecord.Transaction{
		SourcePublicKey:      ids.ID{1},
		DestinationPublicKey: ids.ID{2},
		Amount:               100,
		Tick:                 tick,
		InputType:            0,
		InputSize:            0,
	}
}

func TestAppendAndPtr(t *testing.T) {
	assert := assert.New(t)
	a := New(4096, 1024)
	a.BeginEpoch(1000)

	tx := makeTx(1005)
	off, err := a.AppendTransaction(tx)
	assert.NoError(err)
	assert.False(off.IsAbsent())

	got, err := a.Ptr(off)
	assert.NoError(err)
	assert.Equal(tx.Tick, got.Tick)
	assert.Equal(tx.Amount, got.Amount)
}

func TestReserveAppendArenaFull(t *testing.T) {
	assert := assert.New(t)
	a := New(100, 10)
	a.BeginEpoch(1000)

	a.Lock()
	off1, err := a.ReserveAppendLocked(50)
	assert.NoError(err)
	assert.Equal(txrecord.Offset(params.FirstTickTransactionOffset), off1)

	remaining := int(a.CurrentCapacity()) - params.FirstTickTransactionOffset - 50
	_, err = a.ReserveAppendLocked(remaining)
	assert.NoError(err)

	before := txrecord.Offset(a.nextOff)
	_, err = a.ReserveAppendLocked(1)
	assert.ErrorIs(err, ErrArenaFull)
	a.Unlock()
	assert.Equal(before, a.NextOffset())
}

func TestSeamlessTransitionPreservesTail(t *testing.T) {
	assert := assert.New(t)
	a := New(params.CurrentEpochArenaCapacity(), params.PreviousEpochArenaCapacity())
	a.BeginEpoch(1000)

	tx := makeTx(1095)
	off, err := a.AppendTransaction(tx)
	assert.NoError(err)
	if err := a.OffsetIndexSetLockedHelper(tx.Tick, 0, off); err != nil {
		t.Fatal(err)
	}

	before, err := a.Ptr(off)
	assert.NoError(err)
	assert.Equal(uint32(1095), before.Tick)

	a.BeginEpoch(1100)

	window := a.CurrentWindow()
	assert.True(window.InPrevious(1095))

	newOff, err := a.OffsetIndexGet(1095, 0)
	assert.NoError(err)
	assert.False(newOff.IsAbsent())

	after, err := a.Ptr(newOff)
	assert.NoError(err)
	assert.Equal(uint32(1095), after.Tick)
	assert.Equal(before.Amount, after.Amount)
}

func TestColdStartClearsEverything(t *testing.T) {
	assert := assert.New(t)
	a := New(4096, 1024)
	window := a.CurrentWindow()
	assert.Equal(uint32(0), window.TickBegin)

	a.BeginEpoch(500)
	w := a.CurrentWindow()
	assert.Equal(uint32(500), w.TickBegin)
	assert.Equal(uint32(0), w.OldTickBegin)
	assert.Equal(uint32(0), w.OldTickEnd)
}

func TestWindowBoundaries(t *testing.T) {
	assert := assert.New(t)
	a := New(4096, 1024)
	a.BeginEpoch(1000)
	w := a.CurrentWindow()
	assert.True(w.InCurrent(w.TickBegin))
	assert.False(w.InCurrent(w.TickEnd))
}

// OffsetIndexSetLockedHelper is test-only sugar over
// OffsetIndexSetLocked so tests don't need to hold the lock manually
// for a single write.
func (a *Arena) OffsetIndexSetLockedHelper(tick uint32, txSlot int, off txrecord.Offset) error {
	a.Lock()
	defer a.Unlock()
	return a.OffsetIndexSetLocked(tick, txSlot, off)
}
