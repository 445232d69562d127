package ledger

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/nodecore/ledgercore/examples/pingcontract"
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

func TestLedgerWiresExecutorAndRunsContract(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := New(Config{})
	l.BeginEpoch(1, 1000)

	require.NoError(pingcontract.Register(l.Executor, 0, hostapi.Digest{9}))

	inputBytes, err := pingcontract.PayloadCodec.Marshal(0, &pingcontract.PingInput{Increment: 5})
	require.NoError(err)

	_, err = l.Executor.CallUserProcedure(0, pingcontract.InputTypeIncrement, inputBytes, [32]byte{})
	require.NoError(err)

	out, err := l.Executor.CallUserFunction(0, pingcontract.InputTypeGetCount, nil, [32]byte{})
	require.NoError(err)

	var got pingcontract.PongOutput
	_, err = pingcontract.PayloadCodec.Unmarshal(out, &got)
	require.NoError(err)
	assert.Equal(int64(5), got.Count)

	require.NoError(l.Close())
}

func TestLedgerFinalizeMempoolTransaction(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	l := New(Config{})
	l.BeginEpoch(1, 1000)

	tx := makeTx(1005, 7)
	ok, err := l.Mempool.Insert(tx)
	require.NoError(err)
	require.True(ok)

	require.NoError(l.FinalizeMempoolTransaction(1005, 0))
	assert.Equal(1, l.Storage.Arena().TxCountForTick(1005))
}
