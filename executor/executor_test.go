package executor

import (
	"testing"

	"github.com/nodecore/ledgercore/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	inputTypeNoop uint16 = 1
)

func newTestExecutor() *Executor {
	return New(nil, nil, nil)
}

func TestSystemProcedureCallSetsChangeFlagAndState(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestExecutor()
	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))
	require.NoError(e.RegisterSystemProcedure(0, inputTypeNoop, func(ctx *QpiContext, state []byte) {
		state[0] = 7
	}))

	require.NoError(e.CallSystemProcedure(0, inputTypeNoop))
	assert.True(e.ContractStateChangeFlags().IsSet(0))
	assert.Equal(byte(7), e.contracts[0].state[0])
}

func TestUserProcedureAndFunctionRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestExecutor()
	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))

	require.NoError(e.RegisterUserProcedure(0, inputTypeNoop, ProcedureSpec{InputSize: 1, OutputSize: 0, LocalsSize: 0},
		func(ctx *QpiContext, state, input, output, locals []byte) {
			state[0] = input[0]
		}))
	require.NoError(e.RegisterUserFunction(0, inputTypeNoop, ProcedureSpec{InputSize: 0, OutputSize: 1, LocalsSize: 0},
		func(ctx *QpiContext, state, input, output, locals []byte) {
			output[0] = state[0]
		}))

	_, err := e.CallUserProcedure(0, inputTypeNoop, []byte{42}, [32]byte{})
	require.NoError(err)
	assert.True(e.ContractStateChangeFlags().IsSet(0))

	out, err := e.CallUserFunction(0, inputTypeNoop, nil, [32]byte{})
	require.NoError(err)
	assert.Equal([]byte{42}, out)
}

func TestUnknownContractAndInput(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestExecutor()
	_, err := e.CallUserProcedure(5, inputTypeNoop, nil, [32]byte{})
	assert.ErrorIs(err, ErrUnknownContract)

	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))
	_, err = e.CallUserProcedure(0, inputTypeNoop, nil, [32]byte{})
	assert.ErrorIs(err, ErrUnknownInput)
}

type negativeTransferrer struct{}

func (negativeTransferrer) Transfer(_ [32]byte, amount int64) (int64, error) { return -1, nil }

type passthroughTransferrer struct{}

func (passthroughTransferrer) Transfer(_ [32]byte, amount int64) (int64, error) { return amount, nil }

// TestSubCallClampsNegativeReward is spec §8 scenario 5: a
// cross-contract call whose Transferrer reports a negative balance
// clamps invocationReward to zero and delivers that zero into the
// sub-contract's own QpiContext, while still running the procedure and
// flagging its change bit.
func TestSubCallClampsNegativeReward(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := New(negativeTransferrer{}, nil, nil)

	var observedReward int64 = -1 // sentinel: must be overwritten by the procedure
	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))
	require.NoError(e.RegisterContract(1, hostapi.Digest{2}, 8))
	require.NoError(e.RegisterUserProcedure(1, inputTypeNoop, ProcedureSpec{InputSize: 0, OutputSize: 0, LocalsSize: 0},
		func(ctx *QpiContext, state, input, output, locals []byte) {
			state[0] = 1
			observedReward = ctx.InvocationReward
		}))

	_, reward, err := e.SubCall(1, inputTypeNoop, nil, 100, [32]byte{})
	require.NoError(err)
	assert.Equal(int64(0), reward)
	assert.Equal(int64(0), observedReward)
	assert.True(e.ContractStateChangeFlags().IsSet(1))
}

// TestSubCallDeliversPositiveReward confirms a non-clamped reward is
// actually observable inside the callee's QpiContext, not just in
// SubCall's own return value.
func TestSubCallDeliversPositiveReward(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := New(passthroughTransferrer{}, nil, nil)

	var observedReward int64
	require.NoError(e.RegisterContract(1, hostapi.Digest{2}, 8))
	require.NoError(e.RegisterUserProcedure(1, inputTypeNoop, ProcedureSpec{InputSize: 0, OutputSize: 0, LocalsSize: 0},
		func(ctx *QpiContext, state, input, output, locals []byte) {
			observedReward = ctx.InvocationReward
		}))

	_, reward, err := e.SubCall(1, inputTypeNoop, nil, 42, [32]byte{})
	require.NoError(err)
	assert.Equal(int64(42), reward)
	assert.Equal(int64(42), observedReward)
}

// TestCallUserProcedureHasNoInvocationReward confirms the directly
// transaction-triggered path (not a cross-contract sub-call) always
// runs with a zero invocation reward.
func TestCallUserProcedureHasNoInvocationReward(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestExecutor()

	var observedReward int64 = -1
	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))
	require.NoError(e.RegisterUserProcedure(0, inputTypeNoop, ProcedureSpec{InputSize: 0, OutputSize: 0, LocalsSize: 0},
		func(ctx *QpiContext, state, input, output, locals []byte) {
			observedReward = ctx.InvocationReward
		}))

	_, err := e.CallUserProcedure(0, inputTypeNoop, nil, [32]byte{})
	require.NoError(err)
	assert.Equal(int64(0), observedReward)
}

func TestSnapshotAndClearChangeFlags(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	e := newTestExecutor()
	require.NoError(e.RegisterContract(0, hostapi.Digest{1}, 8))
	require.NoError(e.RegisterSystemProcedure(0, inputTypeNoop, func(ctx *QpiContext, state []byte) {}))
	require.NoError(e.CallSystemProcedure(0, inputTypeNoop))

	snap := e.Snapshot()
	assert.True(snap.ChangeBitmap[0]&1 != 0)

	e.ClearChangeFlags()
	assert.False(e.ContractStateChangeFlags().IsSet(0))
}
