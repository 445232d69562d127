package tickstorage

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/nodecore/ledgercore/arena"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/txrecord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTx(tick uint32, amount int64) *txrecord.Transaction {
	return &txrecord.Transaction{
		SourcePublicKey:      ids.ID{1},
		DestinationPublicKey: ids.ID{2},
		Amount:               amount,
		Tick:                 tick,
	}
}

// TestColdStartAndFinalize is spec §8 scenario 1: cold-start single
// epoch, insert transactions, check counts and digest lookups.
func TestColdStartAndFinalize(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	s := New()
	s.BeginEpoch(1, 1000)

	hasher := hostapi.DefaultHasher()
	for i := 0; i < 3; i++ {
		tx := makeTx(1005, int64(i))
		encoded := make([]byte, tx.TotalSize())
		_, err := tx.Encode(encoded)
		require.NoError(err)
		digest := hasher.Hash(encoded)

		_, err = s.FinalizeTransaction(tx, digest)
		require.NoError(err)

		found, ok := s.FindTransactionByDigest(digest)
		assert.True(ok)
		assert.Equal(tx.Amount, found.Amount)
	}

	assert.Equal(3, s.Arena().TxCountForTick(1005))
	assert.NoError(s.CheckInvariants())
}

// TestSeamlessTransitionDropsOutOfWindowTicks is spec §8 scenario 3.
func TestSeamlessTransitionDropsOutOfWindowTicks(t *testing.T) {
	assert := assert.New(t)
	s := New()
	s.BeginEpoch(1, 1000)

	tx := makeTx(1005, 1)
	digest := hostapi.DefaultHasher().Hash([]byte{1, 2, 3})
	_, err := s.FinalizeTransaction(tx, digest)
	assert.NoError(err)

	s.BeginEpoch(2, 1200)
	w := s.Storage_TestOnlyWindow()
	assert.Equal(uint32(1100), w.OldTickBegin)
	assert.Equal(uint32(1200), w.OldTickEnd)
	assert.False(w.InPrevious(1005))
	assert.False(w.InCurrent(1005))
}

// TestPreservedTransactionSurvivesTransition is spec §8 scenario 4.
func TestPreservedTransactionSurvivesTransition(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	s := New()
	s.BeginEpoch(1, 1000)

	tx := makeTx(1095, 42)
	encoded := make([]byte, tx.TotalSize())
	_, err := tx.Encode(encoded)
	require.NoError(err)
	digest := hostapi.DefaultHasher().Hash(encoded)

	_, err = s.FinalizeTransaction(tx, digest)
	require.NoError(err)

	s.BeginEpoch(2, 1100)

	w := s.Storage_TestOnlyWindow()
	assert.True(w.InPrevious(1095))
	assert.Equal(1, s.Arena().TxCountForTick(1095))
}

// TestGetSetTick exercises per-computor tick vote storage.
func TestGetSetTick(t *testing.T) {
	assert := assert.New(t)
	s := New()
	s.BeginEpoch(1, 1000)

	tick := Tick{Epoch: 1, TickNumber: 1002, ComputorIndex: 5, Timestamp: 99}
	assert.NoError(s.SetTick(tick))

	got, ok := s.GetTick(1002, 5)
	assert.True(ok)
	assert.Equal(tick.Timestamp, got.Timestamp)

	_, ok = s.GetTick(1002, 6)
	assert.False(ok)
}

// TestDigestTableDropReportsCounter exercises the SUPPLEMENTED
// DigestTableDropped counter without changing drop semantics.
func TestDigestTableDropReportsCounter(t *testing.T) {
	assert := assert.New(t)
	dt := newDigestTable(1)
	d1 := hostapi.Digest{1}
	d2 := hostapi.Digest{2}
	assert.True(dt.insert(d1, 10))
	assert.False(dt.insert(d2, 20))
	assert.Equal(uint64(1), dt.Dropped())

	off, ok := dt.find(d1)
	assert.True(ok)
	assert.Equal(txrecord.Offset(10), off)
}

// Storage_TestOnlyWindow exposes the arena's window for assertions,
// avoiding a public API surface just for tests.
func (s *TickStorage) Storage_TestOnlyWindow() arena.Window {
	return s.arena.CurrentWindow()
}
