// Package queue implements the bounded MPMC/SPSC ring-buffer queue
// spec.md §4.D describes, in its two variants: Ring, which stores each
// slot as a single atomic word distinguished from "empty" by a
// sentinel value, and StateRing, which pairs a separate atomic state
// byte with generic element storage for payload types that have no
// natural sentinel.
//
// Both are modeled on the same lock-free index-reservation shape as
// eventloop.MicrotaskRing (ingress.go): a monotonically increasing
// head/tail pair cache-line-separated from the slot array, producers
// publishing with a release write and consumers acquiring with a
// matching read, and a spin-and-retry loop (internal/backoff) bridging
// the gap between reserving an index and that slot's peer having
// finished its half of the handoff.
package queue

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-lockfree/internal/backoff"
	"github.com/joeycumines/go-lockfree/internal/cacheline"
	"github.com/joeycumines/go-lockfree/internal/primes"
)

// Ring is the sentinel-variant bounded queue: T must exclude nilValue,
// since nilValue is the in-band marker for "slot empty."
type Ring[T comparable] struct {
	nilValue           T
	capacity           uint64
	remap              bool
	log2               uint
	elemSize           int
	spsc               bool
	maximizeThroughput bool

	_    cacheline.Pad
	head atomic.Uint64
	_    cacheline.Pad
	tail atomic.Uint64
	_    cacheline.Pad
	slots []atomic.Value
}

// NewRing constructs a sentinel-variant ring of the given capacity.
// nilValue is the sentinel: TryPush(nilValue) and Push(nilValue) both
// panic, since a stored nilValue would be indistinguishable from an
// empty slot.
func NewRing[T comparable](capacity int, nilValue T, opts ...Option) *Ring[T] {
	if capacity < 1 {
		panic("queue: capacity must be >= 1")
	}
	c, err := resolveOptions(opts)
	if err != nil {
		panic(err)
	}
	n := uint64(capacity)
	if c.powerOfTwo {
		n = uint64(primes.NextPow2(capacity))
	}
	r := &Ring[T]{
		nilValue:           nilValue,
		capacity:           n,
		remap:              c.indexRemap,
		spsc:               c.spsc,
		maximizeThroughput: c.maximizeThroughput,
		slots:              make([]atomic.Value, n),
	}
	if r.remap {
		r.log2 = primes.Log2(n)
	}
	r.elemSize = int(unsafe.Sizeof(r.slots[0]))
	for i := range r.slots {
		r.slots[i].Store(nilValue)
	}
	return r
}

func (r *Ring[T]) index(i uint64) int {
	n := i % r.capacity
	if r.remap {
		n = cacheline.Remap(n, r.log2, r.elemSize)
	}
	return int(n)
}

// Capacity returns the ring's slot count (after any power-of-two
// rounding).
func (r *Ring[T]) Capacity() int { return int(r.capacity) }

// WasEmpty is an advisory, relaxed-ordering snapshot.
func (r *Ring[T]) WasEmpty() bool { return r.tail.Load() <= r.head.Load() }

// WasFull is an advisory, relaxed-ordering snapshot.
func (r *Ring[T]) WasFull() bool { return r.tail.Load()-r.head.Load() >= r.capacity }

// WasSize is an advisory, relaxed-ordering snapshot.
func (r *Ring[T]) WasSize() int {
	t, h := r.tail.Load(), r.head.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}

func (r *Ring[T]) publish(idx int, v T) {
	var w backoff.Wait
	for !r.slots[idx].CompareAndSwap(r.nilValue, v) {
		w.Spin(r.maximizeThroughput)
	}
}

func (r *Ring[T]) consume(idx int) T {
	var w backoff.Wait
	for {
		cur, _ := r.slots[idx].Load().(T)
		if cur != r.nilValue {
			if r.slots[idx].CompareAndSwap(cur, r.nilValue) {
				return cur
			}
		}
		w.Spin(r.maximizeThroughput)
	}
}

// TryPush reserves a slot only if the ring is not already at capacity,
// publishing v and returning true; returns false under backpressure
// without blocking.
func (r *Ring[T]) TryPush(v T) bool {
	if v == r.nilValue {
		panic("queue: cannot push the sentinel nil value")
	}
	for {
		tail := r.tail.Load()
		head := r.head.Load()
		if tail-head >= r.capacity {
			return false
		}
		if r.spsc {
			r.tail.Store(tail + 1)
			r.publish(r.index(tail), v)
			return true
		}
		if r.tail.CompareAndSwap(tail, tail+1) {
			r.publish(r.index(tail), v)
			return true
		}
	}
}

// TryPop reserves a slot only if the ring is not empty, consumes it,
// and returns (value, true); returns (zero, false) under backpressure
// without blocking.
func (r *Ring[T]) TryPop() (T, bool) {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head >= tail {
			var zero T
			return zero, false
		}
		if r.spsc {
			r.head.Store(head + 1)
			return r.consume(r.index(head)), true
		}
		if r.head.CompareAndSwap(head, head+1) {
			return r.consume(r.index(head)), true
		}
	}
}

// Push unconditionally reserves the next index (an uncontended
// fetch-add for MPMC, a plain increment for SPSC) and spins on that
// slot until it is free to publish into — the total/blocking form
// spec.md §4.D describes. A Push that reserves farther ahead than the
// ring's capacity simply spins until enough Pops have caught up to
// free its slot, which is what keeps this bounded without an explicit
// capacity check on the blocking path.
func (r *Ring[T]) Push(v T) {
	if v == r.nilValue {
		panic("queue: cannot push the sentinel nil value")
	}
	var tail uint64
	if r.spsc {
		tail = r.tail.Load()
		r.tail.Store(tail + 1)
	} else {
		tail = r.tail.Add(1) - 1
	}
	r.publish(r.index(tail), v)
}

// Pop unconditionally reserves the next index and spins on that slot
// until a producer has published into it — the total/blocking form.
// A Pop called when no corresponding Push will ever arrive blocks
// forever; spec.md §4.D's total operations "expect the corresponding
// peer to progress."
func (r *Ring[T]) Pop() T {
	var head uint64
	if r.spsc {
		head = r.head.Load()
		r.head.Store(head + 1)
	} else {
		head = r.head.Add(1) - 1
	}
	return r.consume(r.index(head))
}
