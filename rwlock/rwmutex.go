package rwlock

import "sync"

// RWMutex is the reader/writer lock used for per-contract state access
// (spec §5's contractStateLock). It is a thin, named wrapper over
// sync.RWMutex rather than a hand-rolled spin-and-pause implementation:
// Go's runtime already gives writers priority over newly arriving
// readers once a writer is waiting (a pending Lock() blocks further
// RLock() callers until it is granted), which is exactly the priority
// guarantee spec §9 asks a reimplementation to preserve. No library in
// the retrieval pack offers a writer-preferring lock, so this is the
// one ambient-stack piece built on the standard library rather than a
// pack dependency.
type RWMutex struct {
	mu sync.RWMutex
}

func (m *RWMutex) Lock()    { m.mu.Lock() }
func (m *RWMutex) Unlock()  { m.mu.Unlock() }
func (m *RWMutex) RLock()   { m.mu.RLock() }
func (m *RWMutex) RUnlock() { m.mu.RUnlock() }
