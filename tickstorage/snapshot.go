package tickstorage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nodecore/ledgercore/arena"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/txrecord"
)

// Snapshot file name parts, per spec §6: filenames carry a 3-digit
// epoch suffix.
const (
	metadataFileBase = "snapshotMetadata"
	tickDataFileBase = "snapshotTickdata"
	ticksFileBase    = "snapshotTicks"
	offsetsFileBase  = "snapshotTickTransactionOffsets"
	txFileBase       = "snapshotTickTransaction"

	metadataSize = 4 + 4 + 4 + 8 + 8
)

var (
	ErrSnapshotTickTooEarly    = errors.New("tickstorage: save tick must be greater than tickBegin")
	ErrSnapshotInconsistent    = errors.New("tickstorage: snapshot metadata is inconsistent with current window; caller must cold-start")
	ErrSnapshotNotBegun        = errors.New("tickstorage: BeginEpoch must be called before TryLoadFromFile")
	ErrSnapshotMetadataMissing = errors.New("tickstorage: snapshot metadata file missing or truncated")
)

func fileName(base string, epoch uint32) string {
	return fmt.Sprintf("%s.%03d", base, epoch%1000)
}

type snapshotMetadata struct {
	epoch                     uint32
	tickBegin                 uint32
	tickEnd                   uint32
	totalTransactionSize      int64
	nextTickTransactionOffset uint64
}

func (m snapshotMetadata) encode() []byte {
	buf := make([]byte, metadataSize)
	binary.BigEndian.PutUint32(buf[0:4], m.epoch)
	binary.BigEndian.PutUint32(buf[4:8], m.tickBegin)
	binary.BigEndian.PutUint32(buf[8:12], m.tickEnd)
	binary.BigEndian.PutUint64(buf[12:20], uint64(m.totalTransactionSize))
	binary.BigEndian.PutUint64(buf[20:28], m.nextTickTransactionOffset)
	return buf
}

func decodeSnapshotMetadata(buf []byte) (snapshotMetadata, error) {
	if len(buf) < metadataSize {
		return snapshotMetadata{}, ErrSnapshotMetadataMissing
	}
	var m snapshotMetadata
	m.epoch = binary.BigEndian.Uint32(buf[0:4])
	m.tickBegin = binary.BigEndian.Uint32(buf[4:8])
	m.tickEnd = binary.BigEndian.Uint32(buf[8:12])
	m.totalTransactionSize = int64(binary.BigEndian.Uint64(buf[12:20]))
	m.nextTickTransactionOffset = binary.BigEndian.Uint64(buf[20:28])
	return m, nil
}

// emptyMetadata is spec §6's "empty sentinel" written on any load
// failure: tickBegin == tickEnd == the caller's current tickBegin.
func emptyMetadata(epoch, tickBegin uint32) snapshotMetadata {
	return snapshotMetadata{epoch: epoch, tickBegin: tickBegin, tickEnd: tickBegin}
}

// Save writes the five-file snapshot set for the current epoch, per
// spec §6's save procedure. toTick is the caller's current system
// tick; it must be strictly greater than the window's tickBegin.
// The digest table itself is never serialized; TryLoadFromFile
// rebuilds it by rehashing the stored transactions with the hasher it
// is given. Save returns the hash of the written metadata bytes. Save
// acquires locks in the canonical section order: tickDataLock, then
// every ticksLocks[c], then the arena's lock.
func (s *TickStorage) Save(fs hostapi.FileStore, dir string, toTick uint32) ([32]byte, error) {
	window := s.arena.CurrentWindow()
	if toTick <= window.TickBegin {
		return [32]byte{}, ErrSnapshotTickTooEarly
	}

	s.tickDataLock.RLock()
	tickDataOut := make([]byte, len(s.tickData)*TickDataSize)
	for i, td := range s.tickData {
		td.encode(tickDataOut[i*TickDataSize : (i+1)*TickDataSize])
	}
	s.tickDataLock.RUnlock()

	n := params.NumberOfComputors
	ticksOut := make([]byte, len(s.ticks)*TickSize)
	for c := 0; c < n; c++ {
		s.ticksLocks[c].RLock()
		for slot := 0; slot < len(s.tickData); slot++ {
			t := s.ticks[slot*n+c]
			pos := (slot*n + c) * TickSize
			t.encode(ticksOut[pos : pos+TickSize])
		}
		s.ticksLocks[c].RUnlock()
	}

	s.arena.Lock()
	beginSlot, _ := window.Slot(window.TickBegin)
	endSlot, ok := window.Slot(toTick)
	if !ok {
		endSlot = beginSlot
	}
	nextOffset, err := s.arena.MaxTransactionEndLocked(beginSlot, endSlot)
	if err != nil {
		s.arena.Unlock()
		return [32]byte{}, err
	}
	offsetsOut := s.arena.CopyOffsetIndexRangeLocked(0, len(s.tickData))
	txBytes := s.arena.CopyBufferPrefixLocked(nextOffset)
	s.arena.Unlock()

	offsetBytes := make([]byte, len(offsetsOut)*8)
	for i, off := range offsetsOut {
		binary.BigEndian.PutUint64(offsetBytes[i*8:(i+1)*8], off)
	}

	epoch := s.currentEpoch
	if err := fs.Save(dir, fileName(tickDataFileBase, epoch), tickDataOut); err != nil {
		return [32]byte{}, fmt.Errorf("tickstorage: save tickdata: %w", err)
	}
	if err := fs.Save(dir, fileName(ticksFileBase, epoch), ticksOut); err != nil {
		return [32]byte{}, fmt.Errorf("tickstorage: save ticks: %w", err)
	}
	if err := fs.Save(dir, fileName(offsetsFileBase, epoch), offsetBytes); err != nil {
		return [32]byte{}, fmt.Errorf("tickstorage: save offsets: %w", err)
	}
	if err := fs.Save(dir, fileName(txFileBase, epoch), txBytes); err != nil {
		return [32]byte{}, fmt.Errorf("tickstorage: save transactions: %w", err)
	}

	meta := snapshotMetadata{
		epoch:                     epoch,
		tickBegin:                 window.TickBegin,
		tickEnd:                   window.TickEnd,
		totalTransactionSize:      int64(len(txBytes)),
		nextTickTransactionOffset: uint64(nextOffset),
	}
	metaBytes := meta.encode()
	if err := fs.Save(dir, fileName(metadataFileBase, epoch), metaBytes); err != nil {
		return [32]byte{}, fmt.Errorf("tickstorage: save metadata: %w", err)
	}

	return hostapi.DefaultHasher().Hash(metaBytes), nil
}

// TryLoadFromFile implements spec §6's load procedure. The caller must
// have already called BeginEpoch (which sets tickBegin) before
// loading; TryLoadFromFile returns ErrSnapshotNotBegun if it hasn't,
// per the documented tryLoadFromFile ordering constraint (spec §9).
// On any other validation failure, it writes the empty metadata
// sentinel back to disk and returns ErrSnapshotInconsistent.
func (s *TickStorage) TryLoadFromFile(fs hostapi.FileStore, hasher hostapi.Hasher, dir string) error {
	if s.arena.FirstCall() {
		return ErrSnapshotNotBegun
	}
	window := s.arena.CurrentWindow()
	epoch := s.currentEpoch

	metaBytes, err := fs.Load(dir, fileName(metadataFileBase, epoch))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMetadataMissing, err)
	}
	meta, err := decodeSnapshotMetadata(metaBytes)
	if err != nil {
		return err
	}

	valid := meta.tickBegin == window.TickBegin &&
		meta.tickBegin <= meta.tickEnd &&
		meta.tickEnd-meta.tickBegin <= uint32(params.MaxTicksPerEpoch) &&
		meta.epoch == epoch

	if !valid {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return ErrSnapshotInconsistent
	}

	tickDataBytes, err := fs.Load(dir, fileName(tickDataFileBase, epoch))
	if err != nil {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return fmt.Errorf("%w: %v", ErrSnapshotInconsistent, err)
	}
	ticksBytes, err := fs.Load(dir, fileName(ticksFileBase, epoch))
	if err != nil {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return fmt.Errorf("%w: %v", ErrSnapshotInconsistent, err)
	}
	offsetBytes, err := fs.Load(dir, fileName(offsetsFileBase, epoch))
	if err != nil {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return fmt.Errorf("%w: %v", ErrSnapshotInconsistent, err)
	}
	txBytes, err := fs.Load(dir, fileName(txFileBase, epoch))
	if err != nil {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return fmt.Errorf("%w: %v", ErrSnapshotInconsistent, err)
	}

	if len(tickDataBytes)%TickDataSize != 0 || len(ticksBytes)%TickSize != 0 || len(offsetBytes)%8 != 0 {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return ErrSnapshotInconsistent
	}

	nTick := len(tickDataBytes) / TickDataSize
	n := params.NumberOfComputors

	s.tickDataLock.Lock()
	for i := 0; i < nTick && i < len(s.tickData); i++ {
		s.tickData[i] = decodeTickData(tickDataBytes[i*TickDataSize : (i+1)*TickDataSize])
	}
	s.tickDataLock.Unlock()

	ticksNTick := len(ticksBytes) / TickSize / n
	for c := 0; c < n; c++ {
		s.ticksLocks[c].Lock()
	}
	for slot := 0; slot < ticksNTick && slot < len(s.tickData); slot++ {
		for c := 0; c < n; c++ {
			pos := (slot*n + c) * TickSize
			s.ticks[slot*n+c] = decodeTick(ticksBytes[pos : pos+TickSize])
		}
	}
	for c := 0; c < n; c++ {
		s.ticksLocks[c].Unlock()
	}

	offsets := make([]uint64, len(offsetBytes)/8)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint64(offsetBytes[i*8 : (i+1)*8])
	}

	s.arena.Lock()
	err = s.arena.LoadLocked(arena.Window{
		TickBegin:    meta.tickBegin,
		TickEnd:      meta.tickEnd,
		OldTickBegin: window.OldTickBegin,
		OldTickEnd:   window.OldTickEnd,
	}, int64(meta.nextTickTransactionOffset), offsets, txBytes)
	s.arena.Unlock()
	if err != nil {
		s.resetToEmptySentinel(fs, dir, epoch, window.TickBegin)
		return fmt.Errorf("%w: %v", ErrSnapshotInconsistent, err)
	}

	s.rebuildDigestIndex(hasher, offsets)
	return nil
}

// rebuildDigestIndex replays every non-zero indexed offset through
// hasher to reconstruct the digest table, since the digest index is
// never serialized.
func (s *TickStorage) rebuildDigestIndex(hasher hostapi.Hasher, offsets []uint64) {
	s.digestLock.Lock()
	s.digests.clear()
	s.digestLock.Unlock()
	s.digestCache.Flush()

	for _, off := range offsets {
		if off == 0 {
			continue
		}
		tx, err := s.arena.Ptr(txrecord.Offset(off))
		if err != nil {
			continue
		}
		encoded := make([]byte, tx.TotalSize())
		if _, err := tx.Encode(encoded); err != nil {
			continue
		}
		s.InsertTransactionDigest(hasher.Hash(encoded), txrecord.Offset(off))
	}
}

func (s *TickStorage) resetToEmptySentinel(fs hostapi.FileStore, dir string, epoch, tickBegin uint32) {
	meta := emptyMetadata(epoch, tickBegin)
	_ = fs.Save(dir, fileName(metadataFileBase, epoch), meta.encode())
}

// Invalidate writes the all-zero metadata sentinel for epoch, marking
// any on-disk snapshot for it unusable without deleting the other
// snapshot files (spec §6's "Invalidation" paragraph).
func (s *TickStorage) Invalidate(fs hostapi.FileStore, dir string, epoch uint32) error {
	return fs.Save(dir, fileName(metadataFileBase, epoch), make([]byte, metadataSize))
}
