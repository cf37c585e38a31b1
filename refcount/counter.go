// Package refcount implements the wait-free reference counter spec.md
// §4.B describes: a 32-bit counter with the property that an increment
// from zero fails rather than resurrecting the object it counts. This is
// what lets shared.Pointer's Load be wait-free: it never has to retry
// because of a racing decrement-to-zero, it only has to check a flag.
package refcount

import "sync/atomic"

const (
	// zeroFlag marks the counter as having reached zero and been fully
	// retired: no further increment may succeed.
	zeroFlag uint32 = 1 << 31
	// zeroPendingFlag marks that some goroutine has observed a
	// zero-valued low bits and is in the process of confirming/claiming
	// the transition to zeroFlag.
	zeroPendingFlag uint32 = 1 << 30

	valueMask = zeroPendingFlag - 1

	// MaxValue is the largest representable count: the low 30 bits.
	MaxValue = valueMask
)

// Counter is a wait-free reference count. The zero value is a counter
// holding value 0 that has NOT been marked dead — use New or NewAt to
// start a counter that is alive with a positive initial count.
type Counter struct {
	v atomic.Uint32
}

// New returns a Counter initialized to 1, the count an owning handle
// holds for a freshly constructed object.
func New() *Counter {
	c := &Counter{}
	c.v.Store(1)
	return c
}

// NewAt returns a Counter initialized to n.
func NewAt(n uint32) *Counter {
	if n > MaxValue {
		panic("refcount: initial value exceeds max representable count")
	}
	c := &Counter{}
	c.v.Store(n)
	return c
}

// Load returns the current count. If the counter has reached zero, Load
// always returns 0, even if a decrement that zeroed it is still
// mid-flight confirming the zeroFlag transition: spec.md §4.B requires
// the "pending" state to read as zero to any wait-free observer.
func (c *Counter) Load() uint32 {
	raw := c.v.Load()
	if raw&zeroFlag != 0 {
		return 0
	}
	low := raw & valueMask
	if low == 0 {
		// A concurrent decrement may be transitioning; help it along by
		// attempting to mark zero-pending, but regardless of whether we
		// win that race, the value to report is zero.
		c.v.CompareAndSwap(raw, raw|zeroPendingFlag)
		return 0
	}
	return low
}

// Reset reinitializes the counter to n. Only safe when the caller knows
// no other goroutine holds a reference derived from this Counter's
// previous lifetime — e.g. immediately after obtaining the backing
// struct from a sync.Pool for reuse as a brand-new control block.
func (c *Counter) Reset(n uint32) {
	if n > MaxValue {
		panic("refcount: initial value exceeds max representable count")
	}
	c.v.Store(n)
}

// IsZero reports whether the counter has been permanently zeroed.
func (c *Counter) IsZero() bool {
	return c.v.Load()&zeroFlag != 0
}

// IncrementIfNonZero attempts to add n to the counter, failing instead of
// resurrecting it if the counter has already reached zero. This is the
// "resurrecting CAS increment" spec.md's ASP Load and cmap's accessor
// acquisition both depend on: false means the object backing this
// counter is already gone and must not be touched.
func (c *Counter) IncrementIfNonZero(n uint32) bool {
	for {
		raw := c.v.Load()
		if raw&zeroFlag != 0 {
			return false
		}
		low := raw & valueMask
		if low == 0 {
			// Another decrement is in the process of zeroing this
			// counter; it has not committed yet, but from this
			// goroutine's perspective the object is already gone.
			return false
		}
		next := low + n
		if next > MaxValue {
			panic("refcount: increment would exceed max representable count")
		}
		if c.v.CompareAndSwap(raw, next) {
			return true
		}
	}
}

// Increment unconditionally adds n, for callers that have already
// established the counter is nonzero (e.g. cloning a handle that is
// itself live). Panics if the counter has already reached zero, since
// that indicates a use-after-free in the caller.
func (c *Counter) Increment(n uint32) {
	if !c.IncrementIfNonZero(n) {
		panic("refcount: increment on a counter that has already reached zero")
	}
}

// Decrement subtracts n and reports whether this call is the one that
// transitioned the counter to zero — true exactly once, for exactly one
// caller, across the counter's lifetime.
func (c *Counter) Decrement(n uint32) bool {
	for {
		raw := c.v.Load()
		low := raw & valueMask
		if low < n {
			panic("refcount: decrement past zero")
		}
		remaining := low - n
		if remaining != 0 {
			if c.v.CompareAndSwap(raw, remaining) {
				return false
			}
			continue
		}
		// This call observed the decrement that would zero the counter.
		// The CAS is the linearization point: exactly one concurrent
		// Decrement call can win it against a given raw value, so
		// losing means raw changed underneath us (e.g. a concurrent
		// Load set the pending flag) and we must re-read and retry.
		if c.v.CompareAndSwap(raw, zeroFlag) {
			return true
		}
	}
}
