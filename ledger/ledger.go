// Package ledger composes tick storage, the mempool, and the contract
// executor into the process-scoped service spec §9 asks for in place
// of the source's file-static singleton buffers: one value, threaded
// through the executor, with explicit construction/destruction instead
// of init()/deinit().
package ledger

import (
	"fmt"

	"github.com/nodecore/ledgercore/executor"
	"github.com/nodecore/ledgercore/hostapi"
	"github.com/nodecore/ledgercore/mempool"
	"github.com/nodecore/ledgercore/snapshot"
	"github.com/nodecore/ledgercore/tickstorage"
	"github.com/nodecore/ledgercore/txrecord"
)

// Config bundles the collaborators a Ledger needs; any left nil fall
// back to hostapi's default implementations (txrecord.AlwaysValid for
// Validator).
type Config struct {
	Hasher      hostapi.Hasher
	Transferrer hostapi.Transferrer
	Clock       hostapi.Clock
	Logger      hostapi.Logger
	FileStore   hostapi.FileStore
	Validator   txrecord.Validator

	SnapshotDir string
}

// Ledger is the process-scoped value composing the three tightly
// coupled subsystems spec §1 describes: tick storage, mempool, and
// the contract executor, plus the on-disk snapshot registry.
type Ledger struct {
	cfg Config

	Storage  *tickstorage.TickStorage
	Mempool  *mempool.TxsPool
	Executor *executor.Executor
	Registry *snapshot.Registry

	log hostapi.Logger
}

// New constructs a Ledger. This is the "init" half of spec §5's
// init -> (beginEpoch)* -> deinit lifecycle; Close is the "deinit"
// half.
func New(cfg Config) *Ledger {
	if cfg.Hasher == nil {
		cfg.Hasher = hostapi.DefaultHasher()
	}
	if cfg.Transferrer == nil {
		cfg.Transferrer = hostapi.NoopTransferrer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = hostapi.NewClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = hostapi.NewLogger()
	}
	if cfg.FileStore == nil {
		cfg.FileStore = hostapi.NewFileStore()
	}
	if cfg.Validator == nil {
		cfg.Validator = txrecord.AlwaysValid{}
	}

	return &Ledger{
		cfg:      cfg,
		Storage:  tickstorage.New(),
		Mempool:  mempool.New(cfg.Hasher, cfg.Validator),
		Executor: executor.New(cfg.Transferrer, cfg.Clock, cfg.Logger),
		Registry: snapshot.NewMemoryRegistry(),
		log:      cfg.Logger.New("component", "ledger"),
	}
}

// BeginEpoch advances both tick storage and the mempool to a new
// epoch whose first tick is t0, in that order — tick storage's window
// is the one other components check against, so it transitions first.
func (l *Ledger) BeginEpoch(epoch, t0 uint32) {
	l.Storage.BeginEpoch(epoch, t0)
	l.Mempool.BeginEpoch(t0)
	l.log.Info("epoch began", "epoch", epoch, "tickBegin", t0)
}

// FinalizeMempoolTransaction copies the i-th pending transaction for
// tick from the mempool into tick storage's authoritative arena, the
// data-flow step spec §2 describes between components C and B. The
// mempool keeps its own copy.
func (l *Ledger) FinalizeMempoolTransaction(tick uint32, i int) error {
	tx, ok := l.Mempool.Get(tick, i)
	if !ok {
		return fmt.Errorf("ledger: no pending transaction %d for tick %d", i, tick)
	}
	digest, ok := l.Mempool.GetDigest(tick, i)
	if !ok {
		digest = l.cfg.Hasher.Hash(mustEncode(tx))
	}
	if _, err := l.Storage.FinalizeTransaction(tx, digest); err != nil {
		return fmt.Errorf("ledger: finalize tx %d/%d: %w", tick, i, err)
	}
	return nil
}

// SaveSnapshot writes tick storage's five-file snapshot set for the
// current epoch and records its validity in the registry.
func (l *Ledger) SaveSnapshot(toTick uint32) error {
	digest, err := l.Storage.Save(l.cfg.FileStore, l.cfg.SnapshotDir, toTick)
	if err != nil {
		l.log.Warn("snapshot save failed", "err", err)
		return err
	}
	return l.Registry.MarkValid(l.Storage.CurrentEpoch(), digest)
}

// TryLoadSnapshot attempts to load the current epoch's snapshot.
// BeginEpoch must already have been called, per
// TickStorage.TryLoadFromFile's ordering contract.
func (l *Ledger) TryLoadSnapshot() error {
	return l.Storage.TryLoadFromFile(l.cfg.FileStore, l.cfg.Hasher, l.cfg.SnapshotDir)
}

// Close releases the snapshot registry's underlying database. Tick
// storage, the mempool, and the executor hold only process-lifetime
// Go-managed memory and need no explicit teardown.
func (l *Ledger) Close() error {
	return l.Registry.Close()
}

func mustEncode(tx *txrecord.Transaction) []byte {
	buf := make([]byte, tx.TotalSize())
	_, _ = tx.Encode(buf)
	return buf
}
