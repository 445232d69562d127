// Package hostapi defines the narrow interfaces the ledger core consumes
// from collaborators that live outside its scope: the hash primitive, the
// balance/transfer subsystem, console logging, and large-file persistence.
// Production wiring is provided for each; tests substitute fakes.
package hostapi

import (
	"os"
	"time"

	"github.com/ava-labs/avalanchego/utils/hashing"
	log "github.com/inconshreveable/log15"
)

// Digest is a 256-bit content hash, produced by Hasher.
type Digest [32]byte

// IsZero reports whether d is the empty-slot sentinel.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Hasher computes the content digest used to address transactions and to
// key the tick storage's digest table. The real deployment hashes with
// KangarooTwelve; this module only depends on the 32-byte digest
// contract, so any collision-resistant 256-bit hash satisfies it.
type Hasher interface {
	Hash(data []byte) Digest
}

// sha256Hasher is the default Hasher, backed by avalanchego's already
// vendored hashing primitive rather than a hand-rolled one.
type sha256Hasher struct{}

// DefaultHasher returns the stand-in Hasher wired when no
// KangarooTwelve implementation is supplied.
func DefaultHasher() Hasher { return sha256Hasher{} }

func (sha256Hasher) Hash(data []byte) Digest {
	sum := hashing.ComputeHash256(data)
	var d Digest
	copy(d[:], sum)
	return d
}

// Transferrer mutates balances on behalf of a cross-contract invocation
// reward. A negative return indicates insufficient funds; callers must
// clamp the invocation reward to zero in that case.
type Transferrer interface {
	Transfer(target [32]byte, amount int64) (int64, error)
}

// NoopTransferrer always succeeds and returns the amount requested,
// useful for tests that don't exercise reward clamping.
type NoopTransferrer struct{}

func (NoopTransferrer) Transfer(_ [32]byte, amount int64) (int64, error) { return amount, nil }

// Logger is the narrow logging collaborator standing in for
// addDebugMessage/logToConsole.
type Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type log15Logger struct {
	l log.Logger
}

// NewLogger returns the default Logger, backed by log15, the logging
// library the teacher repo imports directly.
func NewLogger() Logger {
	return log15Logger{l: log.New()}
}

func (g log15Logger) Debug(msg string, ctx ...interface{}) { g.l.Debug(msg, ctx...) }
func (g log15Logger) Info(msg string, ctx ...interface{})  { g.l.Info(msg, ctx...) }
func (g log15Logger) Warn(msg string, ctx ...interface{})  { g.l.Warn(msg, ctx...) }
func (g log15Logger) Error(msg string, ctx ...interface{}) { g.l.Error(msg, ctx...) }
func (g log15Logger) New(ctx ...interface{}) Logger {
	return log15Logger{l: g.l.New(ctx...)}
}

// NopLogger discards everything; used by tests and benchmarks.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{})    {}
func (NopLogger) Info(string, ...interface{})     {}
func (NopLogger) Warn(string, ...interface{})     {}
func (NopLogger) Error(string, ...interface{})    {}
func (n NopLogger) New(...interface{}) Logger     { return n }

// FileStore stands in for the UEFI/host filesystem collaborator
// (saveLargeFile/loadLargeFile from spec §6): a directory-scoped,
// named-blob persistence surface used only by the snapshot writer.
type FileStore interface {
	Save(dir, name string, data []byte) error
	// Load reads name from dir. It returns os.ErrNotExist (wrapped) if
	// the blob does not exist.
	Load(dir, name string) ([]byte, error)
}

// osFileStore is the default FileStore, backed directly by the host
// filesystem.
type osFileStore struct{}

// NewFileStore returns the default FileStore.
func NewFileStore() FileStore { return osFileStore{} }

func (osFileStore) Save(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(dir+string(os.PathSeparator)+name, data, 0o644)
}

func (osFileStore) Load(dir, name string) ([]byte, error) {
	return os.ReadFile(dir + string(os.PathSeparator) + name)
}

// Clock hands out a monotonically increasing 64-bit counter. The exact
// meaning (CPU cycles vs. nanoseconds) is not part of the contract; call
// sites only rely on it increasing and on fetch-add semantics under
// concurrent readers.
type Clock interface {
	Now() uint64
}

type monotonicClock struct {
	start time.Time
}

// NewClock returns the default Clock, backed by the runtime's monotonic
// timer.
func NewClock() Clock { return monotonicClock{start: time.Now()} }

func (c monotonicClock) Now() uint64 { return uint64(time.Since(c.start)) }
