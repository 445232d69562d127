// Package executor implements spec §4.E's contract executor: a
// registry of system procedures, user procedures, and user functions
// dispatched under per-contract reader/writer locks, backed by the
// locals pool for call-frame allocation.
package executor

import (
	"errors"
	"sync/atomic"

	"github.com/nodecore/ledgercore/bitmap"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/localspool"
	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/rwlock"
)

var (
	ErrUnknownContract = errors.New("executor: contractIndex out of range or not registered")
	ErrUnknownInput    = errors.New("executor: no procedure/function registered for inputType")
)

// SystemProcedure mutates contract state with no caller-supplied
// input; it is invoked on a system timer/event rather than by a
// transaction.
type SystemProcedure func(ctx *QpiContext, state []byte)

// UserProcedure mutates contract state in response to a transaction's
// input payload.
type UserProcedure func(ctx *QpiContext, state, input, output, locals []byte)

// UserFunction reads contract state in response to a query; it must
// not mutate state.
type UserFunction func(ctx *QpiContext, state, input, output, locals []byte)

// ProcedureSpec declares the fixed buffer sizes a registered
// procedure/function's call frame needs.
type ProcedureSpec struct {
	InputSize  int
	OutputSize int
	LocalsSize int
}

type contractEntry struct {
	id    hostapi.Digest
	state []byte

	systemProcedures map[uint16]SystemProcedure
	userProcedures   map[uint16]UserProcedure
	userProcedureSpecs map[uint16]ProcedureSpec
	userFunctions    map[uint16]UserFunction
	userFunctionSpecs map[uint16]ProcedureSpec
}

// QpiContext is spec §3's per-invocation record, allocated inside a
// locals stack frame.
type QpiContext struct {
	CurrentContractIndex int
	Originator           [32]byte
	CurrentContractID    hostapi.Digest
	InvocationReward     int64
	StackIndex           int
}

// Executor is the registry + locking machinery spec §4.E describes.
type Executor struct {
	contracts [params.MaxContractCount]*contractEntry
	stateLocks [params.MaxContractCount]rwlock.RWMutex

	contractTotalExecutionTicks [params.MaxContractCount]atomic.Uint64
	contractStateChangeFlags    *bitmap.Atomic

	locals      *localspool.Pool
	clock       hostapi.Clock
	transferrer hostapi.Transferrer
	log         hostapi.Logger
}

// New constructs an Executor with an empty contract registry.
func New(transferrer hostapi.Transferrer, clock hostapi.Clock, log hostapi.Logger) *Executor {
	if transferrer == nil {
		transferrer = hostapi.NoopTransferrer{}
	}
	if clock == nil {
		clock = hostapi.NewClock()
	}
	if log == nil {
		log = hostapi.NopLogger{}
	}
	return &Executor{
		contractStateChangeFlags: bitmap.New(params.MaxContractCount),
		locals:                   localspool.New(),
		clock:                    clock,
		transferrer:              transferrer,
		log:                      log,
	}
}

// RegisterContract installs a contract at index c with stateSize bytes
// of initial (zeroed) state.
func (e *Executor) RegisterContract(c int, id hostapi.Digest, stateSize int) error {
	if c < 0 || c >= params.MaxContractCount {
		return ErrUnknownContract
	}
	e.contracts[c] = &contractEntry{
		id:                 id,
		state:              make([]byte, stateSize),
		systemProcedures:   make(map[uint16]SystemProcedure),
		userProcedures:     make(map[uint16]UserProcedure),
		userProcedureSpecs: make(map[uint16]ProcedureSpec),
		userFunctions:      make(map[uint16]UserFunction),
		userFunctionSpecs:  make(map[uint16]ProcedureSpec),
	}
	return nil
}

// RegisterSystemProcedure installs fn as contract c's handler for
// sysProcID.
func (e *Executor) RegisterSystemProcedure(c int, sysProcID uint16, fn SystemProcedure) error {
	entry, err := e.entry(c)
	if err != nil {
		return err
	}
	entry.systemProcedures[sysProcID] = fn
	return nil
}

// RegisterUserProcedure installs fn as contract c's handler for
// inputType, with the given frame sizes.
func (e *Executor) RegisterUserProcedure(c int, inputType uint16, spec ProcedureSpec, fn UserProcedure) error {
	entry, err := e.entry(c)
	if err != nil {
		return err
	}
	entry.userProcedures[inputType] = fn
	entry.userProcedureSpecs[inputType] = spec
	return nil
}

// RegisterUserFunction installs fn as contract c's read-only handler
// for inputType, with the given frame sizes.
func (e *Executor) RegisterUserFunction(c int, inputType uint16, spec ProcedureSpec, fn UserFunction) error {
	entry, err := e.entry(c)
	if err != nil {
		return err
	}
	entry.userFunctions[inputType] = fn
	entry.userFunctionSpecs[inputType] = spec
	return nil
}

func (e *Executor) entry(c int) (*contractEntry, error) {
	if c < 0 || c >= params.MaxContractCount || e.contracts[c] == nil {
		return nil, ErrUnknownContract
	}
	return e.contracts[c], nil
}

// CallSystemProcedure implements spec §4.E call path 1: acquire the
// writer lock, time the invocation, invoke, add elapsed cycles to the
// per-contract counter, release, flag the change bit.
func (e *Executor) CallSystemProcedure(c int, sysProcID uint16) error {
	entry, err := e.entry(c)
	if err != nil {
		return err
	}
	fn, ok := entry.systemProcedures[sysProcID]
	if !ok {
		return ErrUnknownInput
	}

	e.stateLocks[c].Lock()
	start := e.clock.Now()
	fn(&QpiContext{CurrentContractIndex: c, CurrentContractID: entry.id}, entry.state)
	e.contractTotalExecutionTicks[c].Add(e.clock.Now() - start)
	e.stateLocks[c].Unlock()

	e.contractStateChangeFlags.Set(c)
	return nil
}

// CallUserProcedure implements spec §4.E call path 2: acquire a locals
// stack with no reservation, lay out input|output|locals in one bump
// allocation, acquire the writer lock, execute, release, flag the
// change bit, free the stack. The procedure's QpiContext carries no
// invocation reward — that only exists on the cross-contract path, see
// SubCall.
func (e *Executor) CallUserProcedure(c int, inputType uint16, input []byte, originator [32]byte) ([]byte, error) {
	out, _, err := e.callUserProcedure(c, inputType, input, originator, 0)
	return out, err
}

// callUserProcedure is the shared body of CallUserProcedure and
// SubCall: the only difference between a transaction-triggered
// procedure call and a cross-contract sub-call is the invocationReward
// the callee's QpiContext is constructed with.
func (e *Executor) callUserProcedure(c int, inputType uint16, input []byte, originator [32]byte, invocationReward int64) ([]byte, *QpiContext, error) {
	entry, err := e.entry(c)
	if err != nil {
		return nil, nil, err
	}
	fn, ok := entry.userProcedures[inputType]
	if !ok {
		return nil, nil, ErrUnknownInput
	}
	spec := entry.userProcedureSpecs[inputType]

	idx, stack := e.locals.Acquire(0)
	defer e.locals.Release(idx)
	defer stack.Free()

	frame, err := stack.Alloc(spec.InputSize + spec.OutputSize + spec.LocalsSize)
	if err != nil {
		return nil, nil, err
	}
	in := frame[:spec.InputSize]
	out := frame[spec.InputSize : spec.InputSize+spec.OutputSize]
	locals := frame[spec.InputSize+spec.OutputSize:]
	copy(in, input)

	ctx := &QpiContext{
		CurrentContractIndex: c,
		CurrentContractID:    entry.id,
		Originator:           originator,
		StackIndex:           idx,
		InvocationReward:     invocationReward,
	}

	e.stateLocks[c].Lock()
	start := e.clock.Now()
	fn(ctx, entry.state, in, out, locals)
	e.contractTotalExecutionTicks[c].Add(e.clock.Now() - start)
	e.stateLocks[c].Unlock()

	e.contractStateChangeFlags.Set(c)

	outCopy := make([]byte, len(out))
	copy(outCopy, out)
	return outCopy, ctx, nil
}

// CallUserFunction implements spec §4.E call path 3: acquire a locals
// stack reserving slot 0 (stacksToIgnore=1) so writers never block on
// stack availability, acquire a reader lock, execute, release.
func (e *Executor) CallUserFunction(c int, inputType uint16, input []byte, originator [32]byte) ([]byte, error) {
	entry, err := e.entry(c)
	if err != nil {
		return nil, err
	}
	fn, ok := entry.userFunctions[inputType]
	if !ok {
		return nil, ErrUnknownInput
	}
	spec := entry.userFunctionSpecs[inputType]

	idx, stack := e.locals.Acquire(1)
	defer e.locals.Release(idx)
	defer stack.Free()

	frame, err := stack.Alloc(spec.InputSize + spec.OutputSize + spec.LocalsSize)
	if err != nil {
		return nil, err
	}
	in := frame[:spec.InputSize]
	out := frame[spec.InputSize : spec.InputSize+spec.OutputSize]
	locals := frame[spec.InputSize+spec.OutputSize:]
	copy(in, input)

	ctx := &QpiContext{CurrentContractIndex: c, CurrentContractID: entry.id, Originator: originator, StackIndex: idx}

	e.stateLocks[c].RLock()
	fn(ctx, entry.state, in, out, locals)
	e.stateLocks[c].RUnlock()

	outCopy := make([]byte, len(out))
	copy(outCopy, out)
	return outCopy, nil
}

// SubCall implements spec §4.E call path 4: a cross-contract call from
// within a contract's own procedure body. It first asks the
// Transferrer to move invocationReward to the target contract,
// clamping the reward to zero if the transfer reports insufficient
// funds, then invokes the sub-contract's procedure under the
// sub-contract's own lock with a fresh QpiContext constructed with
// that clamped reward, which the callee observes via
// ctx.InvocationReward. The caller's own state lock must not be held
// when calling SubCall — the design acquires locks only around the
// innermost code path.
func (e *Executor) SubCall(targetContract int, inputType uint16, input []byte, invocationReward int64, originator [32]byte) ([]byte, int64, error) {
	entry, err := e.entry(targetContract)
	if err != nil {
		return nil, 0, err
	}

	reward, transferErr := e.transferrer.Transfer(entry.id, invocationReward)
	if transferErr != nil || reward < 0 {
		reward = 0
	}

	out, _, err := e.callUserProcedure(targetContract, inputType, input, originator, reward)
	return out, reward, err
}

// ContractStateChangeFlags exposes the change-bitmap for a checkpoint
// routine to consume without taking any lock.
func (e *Executor) ContractStateChangeFlags() *bitmap.Atomic { return e.contractStateChangeFlags }

// TotalExecutionTicks returns the cumulative cycle count attributed to
// contract c.
func (e *Executor) TotalExecutionTicks(c int) uint64 {
	if c < 0 || c >= params.MaxContractCount {
		return 0
	}
	return e.contractTotalExecutionTicks[c].Load()
}

// Snapshot is a read-only copy of per-contract execution metrics and
// the change-bitmap, safe to hand to a caller (e.g. a checkpoint
// routine) without it holding any lock, per spec §5's atomicity note.
type Snapshot struct {
	ExecutionTicks [params.MaxContractCount]uint64
	ChangeBitmap   []uint64
}

// Snapshot returns the current metrics without acquiring any
// per-contract lock.
func (e *Executor) Snapshot() Snapshot {
	var s Snapshot
	for c := range s.ExecutionTicks {
		s.ExecutionTicks[c] = e.contractTotalExecutionTicks[c].Load()
	}
	s.ChangeBitmap = e.contractStateChangeFlags.Snapshot()
	return s
}

// ClearChangeFlags zeroes the change-bitmap, typically called right
// after a checkpoint has consumed it.
func (e *Executor) ClearChangeFlags() { e.contractStateChangeFlags.Clear() }
