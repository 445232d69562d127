// Package txrecord defines the transaction record, its fixed-header,
// variable-payload binary layout, and the typed Offset used to address
// it inside a byte arena (spec §3's Transaction/TickTransactionOffset
// entities, §9's "typed slice + checked offset indexing" redesign
// note).
package txrecord

import (
	"encoding/binary"
	"errors"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

const (
	PublicKeySize = 32
	SignatureSize = 64

	// HeaderSize is the fixed portion of a transaction: two public keys,
	// the amount, the owning tick, the input type, and the input size.
	HeaderSize = 2*PublicKeySize + wrappers.LongLen + wrappers.IntLen + wrappers.ShortLen + wrappers.ShortLen

	// MinTotalSize is HeaderSize plus the trailing signature, the size
	// of a transaction carrying no input payload.
	MinTotalSize = HeaderSize + SignatureSize

	// MaxInputSize bounds inputSize so a single corrupt record cannot
	// make TotalSize() overflow or exceed an arena's capacity outright.
	MaxInputSize = 1 << 16 - 1
)

var (
	ErrTruncated     = errors.New("txrecord: buffer shorter than declared transaction size")
	ErrInputTooLarge = errors.New("txrecord: inputSize exceeds MaxInputSize")
	ErrTickMismatch  = errors.New("txrecord: transaction tick does not match owning tick")
)

// Offset is a byte offset into a transaction arena. Zero means
// "absent"; it is never a valid offset because arenas reserve a
// non-zero FirstTickTransactionOffset prefix.
type Offset uint64

// IsAbsent reports whether o encodes the empty-slot sentinel.
func (o Offset) IsAbsent() bool { return o == 0 }

// Transaction is the variable-size record stored in the byte arena.
// InputPayload aliases into the arena's backing array; callers must not
// retain it past the arena's next epoch transition.
type Transaction struct {
	SourcePublicKey      ids.ID
	DestinationPublicKey ids.ID
	Amount               int64
	Tick                 uint32
	InputType            uint16
	InputSize            uint16
	InputPayload         []byte
	Signature            [SignatureSize]byte
}

// TotalSize is a pure function of the fixed header, the declared input
// size, and the trailing signature.
func (t *Transaction) TotalSize() int {
	return HeaderSize + int(t.InputSize) + SignatureSize
}

// Encode serializes t into dst, which must be at least t.TotalSize()
// bytes. It returns the number of bytes written.
func (t *Transaction) Encode(dst []byte) (int, error) {
	n := t.TotalSize()
	if len(dst) < n {
		return 0, ErrTruncated
	}
	w := dst
	copy(w, t.SourcePublicKey[:])
	w = w[PublicKeySize:]
	copy(w, t.DestinationPublicKey[:])
	w = w[PublicKeySize:]
	binary.BigEndian.PutUint64(w, uint64(t.Amount))
	w = w[wrappers.LongLen:]
	binary.BigEndian.PutUint32(w, t.Tick)
	w = w[wrappers.IntLen:]
	binary.BigEndian.PutUint16(w, t.InputType)
	w = w[wrappers.ShortLen:]
	binary.BigEndian.PutUint16(w, t.InputSize)
	w = w[wrappers.ShortLen:]
	copy(w, t.InputPayload[:t.InputSize])
	w = w[t.InputSize:]
	copy(w, t.Signature[:])
	return n, nil
}

// Decode reads a Transaction whose bytes live inside src starting at
// offset 0. src may extend past the transaction's end (it typically
// points at the rest of the arena); Decode only reads TotalSize() bytes
// once InputSize is known, and InputPayload aliases src rather than
// copying it.
func Decode(src []byte) (*Transaction, error) {
	if len(src) < HeaderSize {
		return nil, ErrTruncated
	}
	var t Transaction
	r := src
	copy(t.SourcePublicKey[:], r[:PublicKeySize])
	r = r[PublicKeySize:]
	copy(t.DestinationPublicKey[:], r[:PublicKeySize])
	r = r[PublicKeySize:]
	t.Amount = int64(binary.BigEndian.Uint64(r))
	r = r[wrappers.LongLen:]
	t.Tick = binary.BigEndian.Uint32(r)
	r = r[wrappers.IntLen:]
	t.InputType = binary.BigEndian.Uint16(r)
	r = r[wrappers.ShortLen:]
	t.InputSize = binary.BigEndian.Uint16(r)
	r = r[wrappers.ShortLen:]

	if t.InputSize > MaxInputSize {
		return nil, ErrInputTooLarge
	}
	if len(src) < t.TotalSize() {
		return nil, ErrTruncated
	}
	t.InputPayload = r[:t.InputSize]
	r = r[t.InputSize:]
	copy(t.Signature[:], r[:SignatureSize])
	return &t, nil
}

// Validator performs the content check spec §4.A calls "validity is a
// content check defined by the collaborator type" — signature
// verification and any contract-specific input validation live outside
// this module's scope and are supplied by the caller.
type Validator interface {
	CheckValidity(t *Transaction) bool
}

// AlwaysValid is a Validator that accepts every transaction; useful for
// tests and for callers that validate upstream of insertion.
type AlwaysValid struct{}

func (AlwaysValid) CheckValidity(*Transaction) bool { return true }
