// Package arena implements the fixed-capacity, two-region transaction
// byte arena (spec §4.A's TickTransactionsStorage): an append-only
// current-epoch region, a smaller preserved-tail previous-epoch region,
// a mutable per-tick offset index, and the seamless epoch transition
// that relocates the tail of the old epoch without re-parsing it.
package arena

import (
	"errors"

	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/rwlock"
	"github.com/nodecore/ledgercore/txrecord"
)

var (
	ErrArenaFull        = errors.New("arena: not enough remaining capacity for append")
	ErrOffsetOutOfRange = errors.New("arena: offset out of range")
	ErrInvalidSlot      = errors.New("arena: tick/txSlot does not address a live slot")
)

// Arena is the two-region byte arena described by spec §4.A. The zero
// value is not usable; construct with New.
type Arena struct {
	mu rwlock.RWMutex

	buf        []byte
	currentCap int64
	prevCap    int64

	window    Window
	firstCall bool
	nextOff   int64

	// offsetIndex is laid out as window-slot-major, TxPerTick-minor:
	// index = slot*TxPerTick + txSlot.
	offsetIndex []uint64
}

// New allocates an Arena whose current-epoch region holds currentCap
// bytes and whose previous-epoch region holds prevCap bytes.
// currentCap must be strictly greater than prevCap.
func New(currentCap, prevCap int64) *Arena {
	if currentCap <= prevCap {
		panic("arena: currentCap must exceed prevCap")
	}
	return &Arena{
		buf:         make([]byte, currentCap+prevCap),
		currentCap:  currentCap,
		prevCap:     prevCap,
		firstCall:   true,
		offsetIndex: make([]uint64, params.OffsetIndexLength()),
	}
}

// Lock/Unlock/RLock/RUnlock expose the arena's structural lock so
// composing types (TickStorage, TxsPool) can hold it across a
// multi-step append alongside their own locks, per spec §5's canonical
// lock ordering.
func (a *Arena) Lock()    { a.mu.Lock() }
func (a *Arena) Unlock()  { a.mu.Unlock() }
func (a *Arena) RLock()   { a.mu.RLock() }
func (a *Arena) RUnlock() { a.mu.RUnlock() }

// CurrentWindow returns a snapshot of the arena's tick window.
func (a *Arena) CurrentWindow() Window {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.window
}

// NextOffset returns the current cursor position (spec's
// nextTickTransactionOffset).
func (a *Arena) NextOffset() txrecord.Offset {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return txrecord.Offset(a.nextOff)
}

// CurrentCapacity and PreviousCapacity report the two region sizes.
func (a *Arena) CurrentCapacity() int64  { return a.currentCap }
func (a *Arena) PreviousCapacity() int64 { return a.prevCap }

// ReserveAppendLocked bumps the cursor by size and returns the offset
// it was bumped from. The caller must already hold Lock().
func (a *Arena) ReserveAppendLocked(size int) (txrecord.Offset, error) {
	if a.nextOff+int64(size) > a.currentCap {
		return 0, ErrArenaFull
	}
	off := a.nextOff
	a.nextOff += int64(size)
	return txrecord.Offset(off), nil
}

// WriteAtLocked copies data into the arena at off. The caller must
// already hold Lock() and must have reserved a range that covers
// [off, off+len(data)).
func (a *Arena) WriteAtLocked(off txrecord.Offset, data []byte) error {
	end := int64(off) + int64(len(data))
	if end > int64(len(a.buf)) {
		return ErrOffsetOutOfRange
	}
	copy(a.buf[off:end], data)
	return nil
}

// AppendTransactionLocked reserves space for tx and encodes it in
// place, returning the offset it was written at. The caller must
// already hold Lock().
func (a *Arena) AppendTransactionLocked(tx *txrecord.Transaction) (txrecord.Offset, error) {
	size := tx.TotalSize()
	off, err := a.ReserveAppendLocked(size)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Encode(a.buf[off : int64(off)+int64(size)]); err != nil {
		return 0, err
	}
	return off, nil
}

// AppendTransaction is the self-locking convenience form of
// AppendTransactionLocked, for callers that don't need to coordinate
// the append with any other lock.
func (a *Arena) AppendTransaction(tx *txrecord.Transaction) (txrecord.Offset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.AppendTransactionLocked(tx)
}

// Ptr dereferences off, unchecked for epoch but bounds-checked against
// the arena's total size, exactly as spec §4.A specifies.
func (a *Arena) Ptr(off txrecord.Offset) (*txrecord.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ptrLocked(off)
}

func (a *Arena) ptrLocked(off txrecord.Offset) (*txrecord.Transaction, error) {
	if off.IsAbsent() || int64(off) >= int64(len(a.buf)) {
		return nil, ErrOffsetOutOfRange
	}
	return txrecord.Decode(a.buf[off:])
}

func offsetIndexPos(slot, txSlot int) (int, bool) {
	if txSlot < 0 || txSlot >= params.TxPerTick {
		return 0, false
	}
	pos := slot*params.TxPerTick + txSlot
	if pos < 0 || pos >= params.OffsetIndexLength() {
		return 0, false
	}
	return pos, true
}

// OffsetIndexGet returns the recorded offset for (tick, txSlot), or
// ErrInvalidSlot if tick is outside both windows.
func (a *Arena) OffsetIndexGet(tick uint32, txSlot int) (txrecord.Offset, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	slot, ok := a.window.Slot(tick)
	if !ok {
		return 0, ErrInvalidSlot
	}
	pos, ok := offsetIndexPos(slot, txSlot)
	if !ok {
		return 0, ErrInvalidSlot
	}
	return txrecord.Offset(a.offsetIndex[pos]), nil
}

// OffsetIndexSetLocked records off for (tick, txSlot). The caller must
// already hold Lock().
func (a *Arena) OffsetIndexSetLocked(tick uint32, txSlot int, off txrecord.Offset) error {
	slot, ok := a.window.Slot(tick)
	if !ok {
		return ErrInvalidSlot
	}
	pos, ok := offsetIndexPos(slot, txSlot)
	if !ok {
		return ErrInvalidSlot
	}
	a.offsetIndex[pos] = uint64(off)
	return nil
}

// TxCountForTick scans the offset index for tick and returns the
// number of leading non-zero entries encountered before the first
// zero, matching the "dense from index 0" convention consumers rely
// on (spec §4.C).
func (a *Arena) TxCountForTick(tick uint32) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.txCountForTickLocked(tick)
}

// TxCountForTickLocked is the same scan, for callers that already hold
// Lock() or RLock().
func (a *Arena) TxCountForTickLocked(tick uint32) int {
	return a.txCountForTickLocked(tick)
}

func (a *Arena) txCountForTickLocked(tick uint32) int {
	slot, ok := a.window.Slot(tick)
	if !ok {
		return 0
	}
	base := slot * params.TxPerTick
	count := 0
	for i := 0; i < params.TxPerTick; i++ {
		if a.offsetIndex[base+i] == 0 {
			break
		}
		count++
	}
	return count
}

// BeginEpoch runs spec §4.A's epoch transition algorithm for the new
// epoch's first tick t0. Use this form when no composing type needs to
// mirror the same transition on its own per-tick structures; TickStorage
// and TxsPool compute the window themselves and call Transition.
func (a *Arena) BeginEpoch(t0 uint32) {
	a.mu.Lock()
	next, seamless := ComputeNextWindow(a.window, t0, a.firstCall)
	a.transitionLocked(next, seamless)
	a.mu.Unlock()
}

// Transition applies a precomputed window transition. TickStorage calls
// this after computing next/seamless itself (via ComputeNextWindow
// against CurrentWindow()), so that its own tickData/ticks tail-copy
// uses the exact same transition the arena applies.
func (a *Arena) Transition(next Window, seamless bool) {
	a.mu.Lock()
	a.transitionLocked(next, seamless)
	a.mu.Unlock()
}

func (a *Arena) transitionLocked(next Window, seamless bool) {
	if seamless {
		keep := a.nextOff - int64(params.FirstTickTransactionOffset)
		if keep < 0 {
			keep = 0
		}
		if keep > a.prevCap {
			keep = a.prevCap
		}
		firstKeep := a.nextOff - keep
		delta := a.currentCap + keep - a.nextOff

		if keep > 0 {
			copy(a.buf[a.currentCap:a.currentCap+keep], a.buf[firstKeep:a.nextOff])
		}

		for tick := next.OldTickBegin; tick < next.OldTickEnd; tick++ {
			oldSlot, ok := a.window.Slot(tick)
			if !ok {
				continue
			}
			newSlot, ok := next.Slot(tick)
			if !ok {
				continue
			}
			oldBase := oldSlot * params.TxPerTick
			newBase := newSlot * params.TxPerTick
			for txSlot := 0; txSlot < params.TxPerTick; txSlot++ {
				off := a.offsetIndex[oldBase+txSlot]
				if off == 0 || int64(off) < firstKeep {
					a.offsetIndex[newBase+txSlot] = 0
				} else {
					a.offsetIndex[newBase+txSlot] = off + uint64(delta)
				}
			}
		}

		currentIndexLen := params.MaxTicksPerEpoch * params.TxPerTick
		for i := 0; i < currentIndexLen; i++ {
			a.offsetIndex[i] = 0
		}
		zeroBytes(a.buf[:a.currentCap])
	} else {
		for i := range a.offsetIndex {
			a.offsetIndex[i] = 0
		}
		zeroBytes(a.buf)
	}

	a.window = next
	a.nextOff = int64(params.FirstTickTransactionOffset)
	a.firstCall = false
}

// FirstCall reports whether BeginEpoch/Transition has never been
// called on this arena, for callers (TickStorage) that need to mirror
// the same cold-start decision without duplicating state.
func (a *Arena) FirstCall() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.firstCall
}

// CopyOffsetIndexRangeLocked copies the offset-index rows for window
// slots [beginSlot, endSlot), for the snapshot writer. The caller must
// already hold RLock() or Lock().
func (a *Arena) CopyOffsetIndexRangeLocked(beginSlot, endSlot int) []uint64 {
	lo := beginSlot * params.TxPerTick
	hi := endSlot * params.TxPerTick
	out := make([]uint64, hi-lo)
	copy(out, a.offsetIndex[lo:hi])
	return out
}

// CopyBufferPrefixLocked copies buf[:n]. The caller must already hold
// RLock() or Lock().
func (a *Arena) CopyBufferPrefixLocked(n int64) []byte {
	out := make([]byte, n)
	copy(out, a.buf[:n])
	return out
}

// MaxTransactionEndLocked scans the offset-index rows for window slots
// [beginSlot, endSlot) and returns the maximum offset+totalSize() seen
// across every non-zero entry, or FIRST_TICK_TRANSACTION_OFFSET if
// none — spec §6's save-procedure scan for
// nextTickTransactionOffset. The caller must already hold Lock() or
// RLock().
func (a *Arena) MaxTransactionEndLocked(beginSlot, endSlot int) (int64, error) {
	maxEnd := int64(params.FirstTickTransactionOffset)
	for slot := beginSlot; slot < endSlot; slot++ {
		base := slot * params.TxPerTick
		for i := 0; i < params.TxPerTick; i++ {
			off := a.offsetIndex[base+i]
			if off == 0 {
				continue
			}
			tx, err := a.ptrLocked(txrecord.Offset(off))
			if err != nil {
				return 0, err
			}
			end := int64(off) + int64(tx.TotalSize())
			if end > maxEnd {
				maxEnd = end
			}
		}
	}
	return maxEnd, nil
}

// LoadLocked restores the arena's window, cursor, offset index, and
// buffer prefix from a snapshot. The caller must already hold Lock().
func (a *Arena) LoadLocked(window Window, nextOff int64, offsetIndex []uint64, prefix []byte) error {
	if int64(len(prefix)) > a.currentCap {
		return ErrArenaFull
	}
	zeroBytes(a.buf)
	copy(a.buf[:len(prefix)], prefix)
	for i := range a.offsetIndex {
		a.offsetIndex[i] = 0
	}
	copy(a.offsetIndex, offsetIndex)
	a.window = window
	a.nextOff = nextOff
	a.firstCall = false
	return nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
