// Package mempool implements spec §4.C's TxsPool: a deduplicated
// staging area for transactions addressed by their target tick,
// sharing the arena layout of tick storage but composing its own
// private instance so pending transactions never touch finalized
// storage until a tick is closed out.
package mempool

import (
	"errors"

	"github.com/nodecore/ledgercore/arena"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/rwlock"
	"github.com/nodecore/ledgercore/txrecord"
)

var (
	ErrOutOfWindow = errors.New("mempool: tick is not strictly in the current-epoch window")
	ErrInvalid     = errors.New("mempool: transaction failed checkValidity")
)

// TxsPool is spec §4.C's TxsPool. The arena's own offset index is the
// authoritative record of where a saved transaction lives — BeginEpoch
// relocates it exactly the way it relocates tick storage's index — so
// the pool keeps only the parallel per-tick digest list alongside it,
// never a private copy of an offset.
type TxsPool struct {
	arena *arena.Arena

	numSavedLock       rwlock.Spinlock
	numSavedTxsPerTick map[uint32]int

	txsDigestsLock rwlock.Spinlock
	perTick        map[uint32][]hostapi.Digest

	hasher    hostapi.Hasher
	validator txrecord.Validator
}

// New constructs an empty TxsPool with its own private arena, sized
// the same way tick storage's is.
func New(hasher hostapi.Hasher, validator txrecord.Validator) *TxsPool {
	if hasher == nil {
		hasher = hostapi.DefaultHasher()
	}
	if validator == nil {
		validator = txrecord.AlwaysValid{}
	}
	return &TxsPool{
		arena:              arena.New(params.CurrentEpochArenaCapacity(), params.PreviousEpochArenaCapacity()),
		numSavedTxsPerTick: make(map[uint32]int),
		perTick:            make(map[uint32][]hostapi.Digest),
		hasher:             hasher,
		validator:          validator,
	}
}

// Insert validates and appends tx if there's room, following the
// canonical lock order from spec §5: numSavedLock, then
// txsDigestsLock + the arena's transaction lock (acquired together).
// The new transaction's arena offset is recorded in the arena's own
// offset index at txSlot == the tick's current count, so a later
// BeginEpoch relocates it along with every other stored offset. It
// returns whether the insertion occurred.
func (p *TxsPool) Insert(tx *txrecord.Transaction) (bool, error) {
	window := p.arena.CurrentWindow()
	if !window.InCurrent(tx.Tick) {
		return false, ErrOutOfWindow
	}
	if !p.validator.CheckValidity(tx) {
		return false, ErrInvalid
	}

	p.numSavedLock.Lock()
	defer p.numSavedLock.Unlock()

	txSlot := p.numSavedTxsPerTick[tx.Tick]
	if txSlot >= params.TxPerTick {
		return false, nil
	}

	p.txsDigestsLock.Lock()
	p.arena.Lock()
	off, err := p.arena.AppendTransactionLocked(tx)
	if err != nil {
		p.arena.Unlock()
		p.txsDigestsLock.Unlock()
		return false, nil
	}
	if err := p.arena.OffsetIndexSetLocked(tx.Tick, txSlot, off); err != nil {
		p.arena.Unlock()
		p.txsDigestsLock.Unlock()
		return false, err
	}
	p.arena.Unlock()

	encoded := make([]byte, tx.TotalSize())
	if _, encErr := tx.Encode(encoded); encErr != nil {
		p.txsDigestsLock.Unlock()
		return false, encErr
	}
	digest := p.hasher.Hash(encoded)
	p.perTick[tx.Tick] = append(p.perTick[tx.Tick], digest)
	p.txsDigestsLock.Unlock()

	p.numSavedTxsPerTick[tx.Tick]++
	return true, nil
}

// GetNumberOfTickTxs returns the exact saved count for tick, 0 if the
// pool knows nothing about it.
func (p *TxsPool) GetNumberOfTickTxs(tick uint32) int {
	p.numSavedLock.Lock()
	defer p.numSavedLock.Unlock()
	return p.numSavedTxsPerTick[tick]
}

// GetNumberOfPendingTxs sums counts over every tick strictly later
// than tick. Per spec §4.C's edge case, if tick is before the
// preserved window (or there's no preserved window and tick precedes
// the current window), it sums every stored tick instead.
func (p *TxsPool) GetNumberOfPendingTxs(tick uint32) int {
	window := p.arena.CurrentWindow()

	sumAll := (window.OldTickBegin == 0 && tick < window.TickBegin) ||
		(window.OldTickBegin != 0 && tick < window.OldTickBegin)

	p.numSavedLock.Lock()
	defer p.numSavedLock.Unlock()

	total := 0
	for t, count := range p.numSavedTxsPerTick {
		if sumAll || t > tick {
			total += count
		}
	}
	return total
}

// Get returns the i-th transaction saved for tick, in insertion order,
// by reading its offset back out of the arena's offset index — the
// same index BeginEpoch relocates — rather than a private copy that
// would go stale across an epoch transition.
func (p *TxsPool) Get(tick uint32, i int) (*txrecord.Transaction, bool) {
	p.numSavedLock.Lock()
	count := p.numSavedTxsPerTick[tick]
	p.numSavedLock.Unlock()
	if i < 0 || i >= count {
		return nil, false
	}

	off, err := p.arena.OffsetIndexGet(tick, i)
	if err != nil || off.IsAbsent() {
		return nil, false
	}
	tx, err := p.arena.Ptr(off)
	if err != nil {
		return nil, false
	}
	return tx, true
}

// GetDigest returns the digest recorded for the i-th transaction saved
// for tick.
func (p *TxsPool) GetDigest(tick uint32, i int) (hostapi.Digest, bool) {
	p.txsDigestsLock.Lock()
	defer p.txsDigestsLock.Unlock()
	digests := p.perTick[tick]
	if i < 0 || i >= len(digests) {
		return hostapi.Digest{}, false
	}
	return digests[i], true
}

// BeginEpoch delegates to the private arena's transition, then
// compacts perTick/numSavedTxsPerTick against the arena's
// post-relocation offset index so that surviving entries for every
// preserved tick are dense from index 0 — entries the transition
// zeroed out, wherever in the tick's slot range they fell, must not
// leave holes, since consumers index by [0, numSavedTxsPerTick). Any
// slot the compaction shifts down is also rewritten in the arena's
// offset index, so Get keeps reading the right offset at the new
// dense position.
func (p *TxsPool) BeginEpoch(t0 uint32) {
	prevWindow := p.arena.CurrentWindow()
	next, seamless := arena.ComputeNextWindow(prevWindow, t0, p.arena.FirstCall())

	p.numSavedLock.Lock()
	defer p.numSavedLock.Unlock()
	p.txsDigestsLock.Lock()
	defer p.txsDigestsLock.Unlock()

	p.arena.Transition(next, seamless)
	newWindow := p.arena.CurrentWindow()

	compacted := make(map[uint32][]hostapi.Digest, len(p.perTick))
	newCounts := make(map[uint32]int, len(p.numSavedTxsPerTick))
	for tick, digests := range p.perTick {
		if !newWindow.InCurrent(tick) && !newWindow.InPrevious(tick) {
			continue
		}

		kept := make([]hostapi.Digest, 0, len(digests))
		writeSlot := 0
		for oldSlot := 0; oldSlot < len(digests); oldSlot++ {
			off, err := p.arena.OffsetIndexGet(tick, oldSlot)
			if err != nil || off.IsAbsent() {
				continue
			}
			if writeSlot != oldSlot {
				p.arena.Lock()
				_ = p.arena.OffsetIndexSetLocked(tick, writeSlot, off)
				_ = p.arena.OffsetIndexSetLocked(tick, oldSlot, 0)
				p.arena.Unlock()
			}
			kept = append(kept, digests[oldSlot])
			writeSlot++
		}
		if len(kept) == 0 {
			continue
		}
		compacted[tick] = kept
		newCounts[tick] = len(kept)
	}
	p.perTick = compacted
	p.numSavedTxsPerTick = newCounts
}
