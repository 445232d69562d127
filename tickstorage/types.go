// Package tickstorage implements spec §4.B's TickStorage: per-tick
// metadata, per-computor tick votes, and a digest-indexed lookup over a
// composed transaction arena.
package tickstorage

import (
	"encoding/binary"
	"errors"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/nodecore/ledgercore/hostapi"
)

// Tick is one consensus vote slot for a (tickNumber, computorIndex)
// pair. Epoch == 0 means the slot is unused.
type Tick struct {
	Epoch                   uint32
	TickNumber              uint32
	ComputorIndex           uint16
	Timestamp               uint64
	PreviousTickDigest      hostapi.Digest
	SaltedTransactionDigest hostapi.Digest
}

// TickSize is the fixed on-disk size of a Tick record.
const TickSize = wrappers.IntLen*2 + wrappers.ShortLen + wrappers.LongLen + 32 + 32

// IsEmpty reports whether this slot has never been voted into.
func (t Tick) IsEmpty() bool { return t.Epoch == 0 }

func (t Tick) encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], t.Epoch)
	binary.BigEndian.PutUint32(dst[4:8], t.TickNumber)
	binary.BigEndian.PutUint16(dst[8:10], t.ComputorIndex)
	binary.BigEndian.PutUint64(dst[10:18], t.Timestamp)
	copy(dst[18:50], t.PreviousTickDigest[:])
	copy(dst[50:82], t.SaltedTransactionDigest[:])
}

func decodeTick(src []byte) Tick {
	var t Tick
	t.Epoch = binary.BigEndian.Uint32(src[0:4])
	t.TickNumber = binary.BigEndian.Uint32(src[4:8])
	t.ComputorIndex = binary.BigEndian.Uint16(src[8:10])
	t.Timestamp = binary.BigEndian.Uint64(src[10:18])
	copy(t.PreviousTickDigest[:], src[18:50])
	copy(t.SaltedTransactionDigest[:], src[50:82])
	return t
}

// TickData is the one-per-tick metadata record. Epoch == 0 means "no
// data for this tick yet".
type TickData struct {
	Epoch            uint32
	TickNumber       uint32
	Timestamp        uint64
	ProposerIndex    uint16
	VarStructDigest  hostapi.Digest
}

// TickDataSize is the fixed on-disk size of a TickData record.
const TickDataSize = wrappers.IntLen*2 + wrappers.LongLen + wrappers.ShortLen + 32

func (t TickData) IsEmpty() bool { return t.Epoch == 0 }

func (t TickData) encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], t.Epoch)
	binary.BigEndian.PutUint32(dst[4:8], t.TickNumber)
	binary.BigEndian.PutUint64(dst[8:16], t.Timestamp)
	binary.BigEndian.PutUint16(dst[16:18], t.ProposerIndex)
	copy(dst[18:50], t.VarStructDigest[:])
}

func decodeTickData(src []byte) TickData {
	var t TickData
	t.Epoch = binary.BigEndian.Uint32(src[0:4])
	t.TickNumber = binary.BigEndian.Uint32(src[4:8])
	t.Timestamp = binary.BigEndian.Uint64(src[8:16])
	t.ProposerIndex = binary.BigEndian.Uint16(src[16:18])
	copy(t.VarStructDigest[:], src[18:50])
	return t
}

var (
	ErrOutOfWindow   = errors.New("tickstorage: tick is outside both the current and previous epoch window")
	ErrComputorIndex = errors.New("tickstorage: computorIndex out of range")
	ErrTooEarly      = errors.New("tickstorage: tick is earlier than system tick")
)
