package tickstorage

import (
	"errors"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/nodecore/ledgercore/arena"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/rwlock"
	"github.com/nodecore/ledgercore/txrecord"
)

var ErrTxPerTickFull = errors.New("tickstorage: tick already holds TxPerTick transactions")

const digestCacheSize = 4096

// TickStorage is spec §4.B's TickStorage: tick metadata, per-computor
// tick votes, and a digest-indexed lookup, composing a private
// transaction arena.
type TickStorage struct {
	arena *arena.Arena

	tickDataLock rwlock.RWMutex
	tickData     []TickData

	ticksLocks [params.NumberOfComputors]rwlock.RWMutex
	ticks      []Tick

	digestLock  rwlock.Spinlock
	digests     *digestTable
	digestCache cache.Cacher // ids.ID -> *txrecord.Transaction, read-through accelerator only

	currentEpoch uint32
}

// New allocates a TickStorage sized per the params package.
func New() *TickStorage {
	return &TickStorage{
		arena:       arena.New(params.CurrentEpochArenaCapacity(), params.PreviousEpochArenaCapacity()),
		tickData:    make([]TickData, params.TickWindowLength()),
		ticks:       make([]Tick, params.TickWindowLength()*params.NumberOfComputors),
		digests:     newDigestTable(params.DigestTableCapacity()),
		digestCache: &cache.LRU{Size: digestCacheSize},
	}
}

// Arena exposes the composed transaction arena for callers (snapshot,
// executor test harnesses) that need direct access.
func (s *TickStorage) Arena() *arena.Arena { return s.arena }

// CurrentEpoch returns the epoch set by the most recent BeginEpoch
// call.
func (s *TickStorage) CurrentEpoch() uint32 { return s.currentEpoch }

// BeginEpoch implements spec §4.B's beginEpoch: copy the tail of
// tickData and ticks into the previous-epoch slots using the same
// window transition the arena applies, then delegate to the arena.
// The digest index is not carried across epochs.
func (s *TickStorage) BeginEpoch(epoch uint32, t0 uint32) {
	prev := s.arena.CurrentWindow()
	next, seamless := arena.ComputeNextWindow(prev, t0, s.arena.FirstCall())
	s.currentEpoch = epoch

	s.tickDataLock.Lock()
	s.relocateTickData(prev, next, seamless)
	s.tickDataLock.Unlock()

	for c := range s.ticksLocks {
		s.ticksLocks[c].Lock()
	}
	s.relocateTicks(prev, next, seamless)
	for c := range s.ticksLocks {
		s.ticksLocks[c].Unlock()
	}

	s.arena.Transition(next, seamless)

	s.digestLock.Lock()
	s.digests.clear()
	s.digestLock.Unlock()
	s.digestCache.Flush()
}

func (s *TickStorage) relocateTickData(prev, next arena.Window, seamless bool) {
	if !seamless {
		for i := range s.tickData {
			s.tickData[i] = TickData{}
		}
		return
	}
	relocateSlots(len(s.tickData), prev, next, func(oldSlot, newSlot int) {
		s.tickData[newSlot] = s.tickData[oldSlot]
	}, func(slot int) {
		s.tickData[slot] = TickData{}
	})
}

func (s *TickStorage) relocateTicks(prev, next arena.Window, seamless bool) {
	n := params.NumberOfComputors
	if !seamless {
		for i := range s.ticks {
			s.ticks[i] = Tick{}
		}
		return
	}
	relocateSlots(len(s.tickData), prev, next, func(oldSlot, newSlot int) {
		copy(s.ticks[newSlot*n:newSlot*n+n], s.ticks[oldSlot*n:oldSlot*n+n])
	}, func(slot int) {
		for c := 0; c < n; c++ {
			s.ticks[slot*n+c] = Tick{}
		}
	})
}

// relocateSlots walks the transition the same way arena.BeginEpoch
// does: preserved ticks move from their old slot to their new
// (previous-epoch-region) slot, everything else in the current-epoch
// region is cleared.
func relocateSlots(slotCount int, prev, next arena.Window, move func(oldSlot, newSlot int), clearSlot func(slot int)) {
	for tick := next.OldTickBegin; tick < next.OldTickEnd; tick++ {
		oldSlot, ok := prev.Slot(tick)
		if !ok {
			continue
		}
		newSlot, ok := next.Slot(tick)
		if !ok {
			continue
		}
		move(oldSlot, newSlot)
	}
	for slot := 0; slot < params.MaxTicksPerEpoch && slot < slotCount; slot++ {
		clearSlot(slot)
	}
}

// TickInCurrentEpochStorage reports whether tick falls in
// [tickBegin, tickEnd).
func (s *TickStorage) TickInCurrentEpochStorage(tick uint32) bool {
	return s.arena.CurrentWindow().InCurrent(tick)
}

// TickInPreviousEpochStorage reports whether tick falls in
// [oldTickBegin, oldTickEnd).
func (s *TickStorage) TickInPreviousEpochStorage(tick uint32) bool {
	return s.arena.CurrentWindow().InPrevious(tick)
}

// GetByTickIfNotEmpty returns the TickData for tick, or false if tick
// is out of both windows or its slot has never been populated.
func (s *TickStorage) GetByTickIfNotEmpty(tick uint32) (TickData, bool) {
	slot, ok := s.arena.CurrentWindow().Slot(tick)
	if !ok {
		return TickData{}, false
	}
	s.tickDataLock.RLock()
	defer s.tickDataLock.RUnlock()
	td := s.tickData[slot]
	if td.IsEmpty() {
		return TickData{}, false
	}
	return td, true
}

// SetTickData writes td into its tick's slot.
func (s *TickStorage) SetTickData(td TickData) error {
	slot, ok := s.arena.CurrentWindow().Slot(td.TickNumber)
	if !ok {
		return ErrOutOfWindow
	}
	s.tickDataLock.Lock()
	defer s.tickDataLock.Unlock()
	s.tickData[slot] = td
	return nil
}

// GetTick returns the vote recorded for (tickNumber, computorIndex).
func (s *TickStorage) GetTick(tickNumber uint32, computorIndex uint16) (Tick, bool) {
	if int(computorIndex) >= params.NumberOfComputors {
		return Tick{}, false
	}
	slot, ok := s.arena.CurrentWindow().Slot(tickNumber)
	if !ok {
		return Tick{}, false
	}
	s.ticksLocks[computorIndex].RLock()
	defer s.ticksLocks[computorIndex].RUnlock()
	t := s.ticks[slot*params.NumberOfComputors+int(computorIndex)]
	if t.IsEmpty() {
		return Tick{}, false
	}
	return t, true
}

// SetTick records a computor's vote for a tick.
func (s *TickStorage) SetTick(t Tick) error {
	if int(t.ComputorIndex) >= params.NumberOfComputors {
		return ErrComputorIndex
	}
	slot, ok := s.arena.CurrentWindow().Slot(t.TickNumber)
	if !ok {
		return ErrOutOfWindow
	}
	s.ticksLocks[t.ComputorIndex].Lock()
	defer s.ticksLocks[t.ComputorIndex].Unlock()
	s.ticks[slot*params.NumberOfComputors+int(t.ComputorIndex)] = t
	return nil
}

// FinalizeTransaction appends tx to the arena, records it in the
// per-tick offset index at the next free slot, and indexes it by
// digest. It fails with ErrOutOfWindow if tx.Tick isn't in the
// current-epoch window and with ErrTxPerTickFull or arena.ErrArenaFull
// if there's no room.
func (s *TickStorage) FinalizeTransaction(tx *txrecord.Transaction, digest hostapi.Digest) (txrecord.Offset, error) {
	if !s.arena.CurrentWindow().InCurrent(tx.Tick) {
		return 0, ErrOutOfWindow
	}
	s.arena.Lock()
	defer s.arena.Unlock()

	slot := s.arena.TxCountForTickLocked(tx.Tick)
	if slot >= params.TxPerTick {
		return 0, ErrTxPerTickFull
	}
	off, err := s.arena.AppendTransactionLocked(tx)
	if err != nil {
		return 0, err
	}
	if err := s.arena.OffsetIndexSetLocked(tx.Tick, slot, off); err != nil {
		return 0, err
	}
	s.insertDigest(digest, off, tx)
	return off, nil
}

func (s *TickStorage) insertDigest(digest hostapi.Digest, off txrecord.Offset, tx *txrecord.Transaction) {
	s.digestLock.Lock()
	s.digests.insert(digest, off)
	s.digestLock.Unlock()
	s.digestCache.Put(ids.ID(digest), tx)
}

// InsertTransactionDigest indexes an already-stored transaction (found
// at off) by digest, for callers (e.g. snapshot load) that reconstruct
// the digest table without going through FinalizeTransaction.
func (s *TickStorage) InsertTransactionDigest(digest hostapi.Digest, off txrecord.Offset) {
	s.digestLock.Lock()
	defer s.digestLock.Unlock()
	s.digests.insert(digest, off)
}

// FindTransactionByDigest resolves a transaction by its digest, if
// indexed.
func (s *TickStorage) FindTransactionByDigest(digest hostapi.Digest) (*txrecord.Transaction, bool) {
	if cached, ok := s.digestCache.Get(ids.ID(digest)); ok {
		return cached.(*txrecord.Transaction), true
	}
	s.digestLock.Lock()
	off, ok := s.digests.find(digest)
	s.digestLock.Unlock()
	if !ok {
		return nil, false
	}
	tx, err := s.arena.Ptr(off)
	if err != nil {
		return nil, false
	}
	s.digestCache.Put(ids.ID(digest), tx)
	return tx, true
}

// DigestTableDropped returns the number of digest inserts silently
// dropped because the table was full (spec §9's open question,
// surfaced as a counter rather than a semantic change).
func (s *TickStorage) DigestTableDropped() uint64 {
	return s.digests.Dropped()
}

// CheckInvariants walks spec §3's storage invariants 1-3 and returns
// the first violation found, or nil: the window bounds, and for each
// current-epoch tick's leading run of non-zero offsets, that the offset
// decodes to a transaction whose tick field matches. It does not check
// the arena cursor (invariant 4), the digest table's contents
// (invariant 5), or the previous-epoch window's offsets. It never
// panics; this is the
// "checkStateConsistencyWithAssert" analogue from spec §8, made safe to
// call from tests or an operator-triggered consistency check.
func (s *TickStorage) CheckInvariants() error {
	w := s.arena.CurrentWindow()
	if w.TickBegin > w.TickEnd {
		return errors.New("tickstorage: tickBegin > tickEnd")
	}
	if w.TickEnd-w.TickBegin > uint32(params.MaxTicksPerEpoch+params.TicksKeptFromPriorEpoch) {
		return errors.New("tickstorage: current window wider than MaxTicksPerEpoch+TicksKeptFromPriorEpoch")
	}
	if w.OldTickBegin > w.OldTickEnd || w.OldTickEnd > w.TickBegin {
		return errors.New("tickstorage: previous window does not precede current window")
	}
	if w.OldTickEnd-w.OldTickBegin > uint32(params.TicksKeptFromPriorEpoch) {
		return errors.New("tickstorage: previous window wider than TicksKeptFromPriorEpoch")
	}
	for tick := w.TickBegin; tick < w.TickEnd; tick++ {
		count := s.arena.TxCountForTick(tick)
		for slot := 0; slot < count; slot++ {
			off, err := s.arena.OffsetIndexGet(tick, slot)
			if err != nil || off.IsAbsent() {
				continue
			}
			tx, err := s.arena.Ptr(off)
			if err != nil {
				return errors.New("tickstorage: indexed offset does not decode to a transaction")
			}
			if tx.Tick != tick {
				return errors.New("tickstorage: transaction's tick field does not match owning tick")
			}
		}
	}
	return nil
}
