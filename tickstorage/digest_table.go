package tickstorage

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/txrecord"
)

// digestTable is the open-addressing digest->offset hash table from
// spec §4.B: linear probing, zero digest as the empty-slot marker, and
// a silent drop on a full-table insert collision (spec §9's open
// question, kept silent per the decision in SPEC_FULL.md but made
// observable via Dropped()).
type digestTable struct {
	keys     []hostapi.Digest
	offsets  []uint64
	capacity int
	dropped  atomic.Uint64
}

func newDigestTable(capacity int) *digestTable {
	return &digestTable{
		keys:     make([]hostapi.Digest, capacity),
		offsets:  make([]uint64, capacity),
		capacity: capacity,
	}
}

// hashDigest reproduces spec §4.B's "digest.word[7] mod capacity":
// the digest viewed as eight big-endian 32-bit words, keyed by the
// last one.
func hashDigest(d hostapi.Digest) uint64 {
	word7 := binary.BigEndian.Uint32(d[28:32])
	return uint64(word7)
}

// insert places d -> off, linear-probing from hash(d). Returns false
// (and bumps the dropped counter) if the table is full and no empty or
// matching slot was found within capacity probes.
func (t *digestTable) insert(d hostapi.Digest, off txrecord.Offset) bool {
	if t.capacity == 0 {
		t.dropped.Add(1)
		return false
	}
	start := int(hashDigest(d) % uint64(t.capacity))
	for i := 0; i < t.capacity; i++ {
		pos := (start + i) % t.capacity
		if t.keys[pos].IsZero() {
			t.keys[pos] = d
			t.offsets[pos] = uint64(off)
			return true
		}
		if t.keys[pos] == d {
			t.offsets[pos] = uint64(off)
			return true
		}
	}
	t.dropped.Add(1)
	return false
}

// find returns the offset recorded for d, probing linearly from
// hash(d) until either d or an empty slot is encountered.
func (t *digestTable) find(d hostapi.Digest) (txrecord.Offset, bool) {
	if t.capacity == 0 || d.IsZero() {
		return 0, false
	}
	start := int(hashDigest(d) % uint64(t.capacity))
	for i := 0; i < t.capacity; i++ {
		pos := (start + i) % t.capacity
		if t.keys[pos].IsZero() {
			return 0, false
		}
		if t.keys[pos] == d {
			return txrecord.Offset(t.offsets[pos]), true
		}
	}
	return 0, false
}

// clear empties the table; digest indices do not carry across epochs.
func (t *digestTable) clear() {
	for i := range t.keys {
		t.keys[i] = hostapi.Digest{}
		t.offsets[i] = 0
	}
}

// Dropped returns the number of inserts silently dropped because the
// table was full.
func (t *digestTable) Dropped() uint64 {
	return t.dropped.Load()
}
