// Package localspool implements spec §4.D's contract locals pool: a
// fixed set of large per-processor scratch stacks used to allocate
// procedure/function input, output, and locals buffers, plus nested
// cross-contract sub-contexts, in strict LIFO order.
package localspool

import (
	"errors"
	"runtime"

	"github.com/nodecore/ledgercore/params"
	"github.com/nodecore/ledgercore/rwlock"
)

var ErrStackFull = errors.New("localspool: requested allocation exceeds the stack's remaining capacity")

// Stack is one fixed-size scratch region with a bump-pointer allocator
// and a one-byte spinlock guarding its acquisition.
type Stack struct {
	lock rwlock.Spinlock
	buf  []byte
	top  int
}

func newStack() *Stack {
	return &Stack{buf: make([]byte, params.ContractLocalsStackSize)}
}

// Alloc bumps the stack's cursor by size and returns a zeroed slice
// backed by the stack's buffer. The caller must already own the
// stack (via Pool.Acquire).
func (s *Stack) Alloc(size int) ([]byte, error) {
	if s.top+size > len(s.buf) {
		return nil, ErrStackFull
	}
	region := s.buf[s.top : s.top+size]
	for i := range region {
		region[i] = 0
	}
	s.top += size
	return region, nil
}

// Free returns the whole used region to empty, for the top-level
// return path. Nested contexts must instead track and rewind their
// own high-water mark with Mark/Rewind.
func (s *Stack) Free() { s.top = 0 }

// Mark returns the current cursor, to be restored later with Rewind —
// the scoped push/pop discipline nested sub-contexts rely on.
func (s *Stack) Mark() int { return s.top }

// Rewind restores the cursor to a previously captured Mark.
func (s *Stack) Rewind(mark int) { s.top = mark }

// Pool is spec §4.D's fixed set of N>=2 per-processor scratch stacks.
type Pool struct {
	stacks [params.ContractLocalsStackCount]*Stack
}

// New constructs a Pool with ContractLocalsStackCount stacks, each
// ContractLocalsStackSize bytes.
func New() *Pool {
	p := &Pool{}
	for i := range p.stacks {
		p.stacks[i] = newStack()
	}
	return p
}

// Acquire implements acquireContractLocalsStack: it scans slots
// starting at stacksToIgnore, wrapping around, using try-lock + pause.
// Low-priority (read-only function) callers pass stacksToIgnore >= 1
// to reserve the first slot(s) for the state-writer path, so writers
// can never be starved by concurrent function calls.
func (p *Pool) Acquire(stacksToIgnore int) (int, *Stack) {
	n := len(p.stacks)
	start := stacksToIgnore % n
	for {
		for i := 0; i < n; i++ {
			idx := (start + i) % n
			if idx < stacksToIgnore {
				continue
			}
			if p.stacks[idx].lock.TryLock() {
				return idx, p.stacks[idx]
			}
		}
		runtime.Gosched()
	}
}

// Release unlocks slot idx, acquired via Acquire.
func (p *Pool) Release(idx int) {
	p.stacks[idx].lock.Unlock()
}
