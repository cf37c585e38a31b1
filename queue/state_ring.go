package queue

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-lockfree/internal/backoff"
	"github.com/joeycumines/go-lockfree/internal/cacheline"
	"github.com/joeycumines/go-lockfree/internal/primes"
)

// slotState is the per-slot state machine spec.md §4.D specifies:
// producers own the empty->storing->stored half, consumers own the
// stored->loading->empty half.
type slotState uint32

const (
	stateEmpty slotState = iota
	stateStoring
	stateStored
	stateLoading
)

// StateRing is the state-byte-variant bounded queue: unlike Ring, T may
// be any type (no sentinel value is required), at the cost of an extra
// atomic state word per slot.
type StateRing[T any] struct {
	capacity           uint64
	remap              bool
	log2               uint
	elemSize           int
	spsc               bool
	maximizeThroughput bool

	_      cacheline.Pad
	head   atomic.Uint64
	_      cacheline.Pad
	tail   atomic.Uint64
	_      cacheline.Pad
	states []atomic.Uint32
	values []T
}

// NewStateRing constructs a state-byte-variant ring of the given
// capacity.
func NewStateRing[T any](capacity int, opts ...Option) *StateRing[T] {
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
	r := &StateRing[T]{
		capacity:           n,
		remap:              c.indexRemap,
		spsc:               c.spsc,
		maximizeThroughput: c.maximizeThroughput,
		states:             make([]atomic.Uint32, n),
		values:             make([]T, n),
	}
	if r.remap {
		r.log2 = primes.Log2(n)
	}
	r.elemSize = int(unsafe.Sizeof(r.values[0]))
	return r
}

func (r *StateRing[T]) index(i uint64) int {
	n := i % r.capacity
	if r.remap {
		n = cacheline.Remap(n, r.log2, r.elemSize)
	}
	return int(n)
}

// Capacity returns the ring's slot count (after any power-of-two
// rounding).
func (r *StateRing[T]) Capacity() int { return int(r.capacity) }

// WasEmpty is an advisory, relaxed-ordering snapshot.
func (r *StateRing[T]) WasEmpty() bool { return r.tail.Load() <= r.head.Load() }

// WasFull is an advisory, relaxed-ordering snapshot.
func (r *StateRing[T]) WasFull() bool { return r.tail.Load()-r.head.Load() >= r.capacity }

// WasSize is an advisory, relaxed-ordering snapshot.
func (r *StateRing[T]) WasSize() int {
	t, h := r.tail.Load(), r.head.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}

func (r *StateRing[T]) publish(idx int, v T) {
	var w backoff.Wait
	if !r.spsc {
		for !r.states[idx].CompareAndSwap(uint32(stateEmpty), uint32(stateStoring)) {
			w.Spin(r.maximizeThroughput)
		}
	} else {
		for r.states[idx].Load() != uint32(stateEmpty) {
			w.Spin(r.maximizeThroughput)
		}
		r.states[idx].Store(uint32(stateStoring))
	}
	r.values[idx] = v
	r.states[idx].Store(uint32(stateStored))
}

func (r *StateRing[T]) consume(idx int) T {
	var w backoff.Wait
	if !r.spsc {
		for !r.states[idx].CompareAndSwap(uint32(stateStored), uint32(stateLoading)) {
			w.Spin(r.maximizeThroughput)
		}
	} else {
		for r.states[idx].Load() != uint32(stateStored) {
			w.Spin(r.maximizeThroughput)
		}
		r.states[idx].Store(uint32(stateLoading))
	}
	v := r.values[idx]
	var zero T
	r.values[idx] = zero
	r.states[idx].Store(uint32(stateEmpty))
	return v
}

// TryPush reserves a slot only if the ring is not already at capacity,
// publishing v and returning true; returns false under backpressure
// without blocking.
func (r *StateRing[T]) TryPush(v T) bool {
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
func (r *StateRing[T]) TryPop() (T, bool) {
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

// Push unconditionally reserves the next index and spins until that
// slot's state machine lets it publish — the total/blocking form.
func (r *StateRing[T]) Push(v T) {
	var tail uint64
	if r.spsc {
		tail = r.tail.Load()
		r.tail.Store(tail + 1)
	} else {
		tail = r.tail.Add(1) - 1
	}
	r.publish(r.index(tail), v)
}

// Pop unconditionally reserves the next index and spins until that
// slot's state machine has a value to hand back — the total/blocking
// form.
func (r *StateRing[T]) Pop() T {
	var head uint64
	if r.spsc {
		head = r.head.Load()
		r.head.Store(head + 1)
	} else {
		head = r.head.Add(1) - 1
	}
	return r.consume(r.index(head))
}
