package xsync

import (
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/internal/backoff"
)

// Barrier is a fixed-party spin barrier per spec.md §4.G: participants
// call Arrive as they reach the rendezvous point; a coordinating
// goroutine calls Wait, which spins until every party has arrived and
// then resets the counter for the barrier's next use.
type Barrier struct {
	parties int32
	count   atomic.Int32
}

// NewBarrier constructs a Barrier for the given fixed number of
// participants.
func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic("xsync: Barrier requires at least one party")
	}
	return &Barrier{parties: int32(parties)}
}

// Arrive signals that one participant has reached the barrier.
func (b *Barrier) Arrive() { b.count.Add(1) }

// Wait spins until every participant has called Arrive, then resets
// the counter so the Barrier can be reused. Only the coordinating
// goroutine should call Wait; participants call Arrive and move on.
func (b *Barrier) Wait() {
	var w backoff.Wait
	for b.count.Load() < b.parties {
		w.Spin(false)
	}
	b.count.Add(-b.parties)
}
