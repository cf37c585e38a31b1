package xsync

import (
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/internal/backoff"
	"github.com/joeycumines/go-lockfree/internal/cacheline"
	"github.com/joeycumines/go-lockfree/internal/fence"
)

// SeqLock is a single-writer, multi-reader seqlock per spec.md §4.G: an
// even sequence number means the payload is quiescent, odd means a
// writer is mid-copy; a reader retries until it brackets its copy with
// two equal, even reads of the sequence number.
type SeqLock[T any] struct {
	seq atomic.Uint64
	_   cacheline.Pad
	value T
}

// NewSeqLock constructs a SeqLock holding an initial value.
func NewSeqLock[T any](v T) *SeqLock[T] {
	s := &SeqLock[T]{value: v}
	return s
}

// Write is owner-only: calling Write concurrently from more than one
// goroutine is a data race, not a detected error, the same contract
// deque.Push and queue's SPSC mode carry.
func (s *SeqLock[T]) Write(v T) {
	s.seq.Add(1) // now odd: readers must retry
	fence.Light()
	s.value = v
	fence.Light()
	s.seq.Add(1) // now even: payload quiescent again
}

// Read returns a torn-free copy of the current value, retrying across
// any writer that was (or became) active during the attempt.
func (s *SeqLock[T]) Read() T {
	var w backoff.Wait
	for {
		before := s.seq.Load()
		if before&1 != 0 {
			w.Spin(false)
			continue
		}
		fence.Light()
		v := s.value
		fence.Light()
		after := s.seq.Load()
		if before == after {
			return v
		}
		w.Spin(false)
	}
}
