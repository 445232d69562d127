// Package params holds the compile-time configuration header for the
// ledger core: entity sizes, epoch geometry, and pool capacities. They
// live in one place rather than being duplicated per component.
package params

const (
	// NumberOfComputors is the number of voting computor identities per
	// tick.
	NumberOfComputors = 676

	// MaxTicksPerEpoch bounds how many ticks the current-epoch region of
	// tick storage can address.
	MaxTicksPerEpoch = 100_000

	// TicksKeptFromPriorEpoch is the size of the tail preserved across a
	// seamless epoch transition.
	TicksKeptFromPriorEpoch = 100

	// TxPerTick bounds how many transactions a single tick can record.
	TxPerTick = 1024

	// FirstTickTransactionOffset reserves a zero-meaning-absent prefix at
	// the front of the transaction arena.
	FirstTickTransactionOffset = 1

	// TransactionSparseness oversizes the arena relative to the expected
	// occupancy to keep fragmentation from exhausting it early.
	TransactionSparseness = 4

	// AverageTransactionSize is used only to size the arena; it does not
	// constrain any individual transaction's size.
	AverageTransactionSize = 256

	// ContractLocalsStackCount is the number of per-processor scratch
	// stacks. Must be >= 2 so a reserved writer slot can never be
	// starved by read-only function calls.
	ContractLocalsStackCount = 16

	// ContractLocalsStackSize is the size, in bytes, of a single
	// processor's scratch stack.
	ContractLocalsStackSize = 32 << 20 // 32 MiB

	// MaxContractCount bounds contractIndex across the executor registry.
	MaxContractCount = 256
)

// CurrentEpochArenaCapacity is the byte capacity of the current-epoch
// region of a transaction arena.
func CurrentEpochArenaCapacity() int64 {
	return int64(MaxTicksPerEpoch) * int64(TxPerTick) * int64(AverageTransactionSize) / TransactionSparseness
}

// PreviousEpochArenaCapacity is the byte capacity of the previous-epoch
// region of a transaction arena; always strictly smaller than the
// current-epoch region.
func PreviousEpochArenaCapacity() int64 {
	return int64(TicksKeptFromPriorEpoch) * int64(TxPerTick) * int64(AverageTransactionSize) / TransactionSparseness
}

// TickWindowLength is the number of tick slots addressed per epoch
// region: current-epoch capacity plus the preserved prior-epoch tail.
func TickWindowLength() int {
	return MaxTicksPerEpoch + TicksKeptFromPriorEpoch
}

// OffsetIndexLength is the number of u64 offset slots in a
// TickTransactionsStorage's offset index.
func OffsetIndexLength() int {
	return TickWindowLength() * TxPerTick
}

// DigestTableCapacity is the number of slots in the digest->transaction
// open-addressing hash table.
func DigestTableCapacity() int {
	return MaxTicksPerEpoch * TxPerTick
}
