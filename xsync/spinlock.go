// Package xsync provides the shared concurrency primitives spec.md
// §4.G lists alongside the four named components: a spinlock, a
// seqlock, a condition-variable-backed wait-group, and a fixed-party
// spin barrier. None of these are novel to this module, and the other
// packages (queue, deque, cmap) do not depend on them; they are offered
// to callers because spec.md specifically calls out
// lock-free/PAUSE-backoff variants the standard library doesn't
// provide, so this package supplies them.
package xsync

import (
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/internal/backoff"
)

// Spinlock is a compare-and-swap mutual-exclusion lock with a
// PAUSE/Gosched backoff loop instead of parking the goroutine, per
// spec.md §4.G. Prefer sync.Mutex for anything held longer than a few
// instructions; Spinlock is for critical sections that are expected to
// be extremely short.
type Spinlock struct {
	locked atomic.Bool
}

// Lock spins until the lock is acquired.
func (s *Spinlock) Lock() {
	var w backoff.Wait
	for !s.locked.CompareAndSwap(false, true) {
		w.Spin(false)
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *Spinlock) TryLock() bool {
	return s.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an already-unlocked Spinlock is a
// caller bug, not a detected error.
func (s *Spinlock) Unlock() {
	s.locked.Store(false)
}

// Guarded is the RAII-style handle Guard returns: hold it for the
// duration of the critical section and Release it (typically via
// defer) on every exit path, including panics.
type Guarded struct {
	s *Spinlock
}

// Release unlocks the spinlock this guard holds.
func (g Guarded) Release() { g.s.Unlock() }

// Guard acquires the lock and returns a handle whose Release unlocks
// it, so callers can write `defer s.Guard().Release()` instead of a
// separate Lock/Unlock pair — spec.md §9's explicit scoped-acquisition
// re-architecture note, matching the shape of Go's sync.Mutex would
// have if it returned a guard value.
func (s *Spinlock) Guard() Guarded {
	s.Lock()
	return Guarded{s: s}
}
