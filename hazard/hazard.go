// Package hazard implements the deferred-reclamation engine spec.md
// §4.A describes: one protected-pointer slot per active reader, and an
// asymmetric light/heavy fence pair (internal/fence) between publishing
// a protected pointer and scanning for survivors before destruction.
//
// Exactly one protected pointer per holder is sufficient for shared.Pointer
// (spec.md §4.A's rationale: it simplifies scanning and bounds
// unreclaimed memory to O(P^2) in the number of concurrent holders), so
// that is all this package offers; a caller needing to protect more than
// one pointer concurrently acquires more than one Holder.
//
// Failure semantics (spec.md §7, §9): there are no recoverable errors.
// A heavy-fence failure is fatal: internal/fence logs it at
// xlog.LevelError and panics (see SPEC_FULL.md §7). Slot-list growth
// is a plain Go allocation, so its failure is the runtime's own
// out-of-memory crash. A panic raised by the disposer is recovered and
// logged at xlog.LevelError; that pointer is not retried.
package hazard

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-lockfree/internal/fence"
	"github.com/joeycumines/go-lockfree/xlog"
	"golang.org/x/exp/slices"
)

// retiredNode is the side-table retired-list entry. The source this
// module is ported from threads the retired list intrusively through
// the control block itself; Go generics have no portable way to demand
// an arbitrary T carry a next-pointer field, so this module follows the
// same pattern eventloop's registry.go uses for its own out-of-band
// bookkeeping (a small side allocation per entry, rather than reusing
// storage inside the tracked object) and allocates one retiredNode per
// Retire call instead.
type retiredNode[T any] struct {
	ptr  *T
	next *retiredNode[T]
}

// slot is one hazard-pointer slot: the address a single holder currently
// protects, plus that holder's retired list.
type slot[T any] struct {
	protected atomic.Pointer[T]
	inUse     atomic.Bool
	next      *slot[T] // intrusive link in the engine's slot list; never removed
}

// Engine is a hazard-pointer reclamation engine for garbage of type *T.
// Construct one Engine per garbage type (shared.New constructs one for
// each Pointer it returns) — do not share a single Engine across
// unrelated garbage types.
type Engine[T any] struct {
	dispose func(*T)

	slotsHead atomic.Pointer[slot[T]] // lock-free prepend-only list

	retiredHead atomic.Pointer[retiredNode[T]] // lock-free stack, global to the engine
	retiredLen  atomic.Uint32

	retireThreshold atomic.Uint32
	deamortized     atomic.Bool
	deamortizeBatch atomic.Int32
}

// Option configures an Engine at construction time.
type Option func(*engineOptions)

type engineOptions struct {
	retireThreshold uint32
	deamortized     bool
	batchSize       int32
}

// WithRetireThreshold overrides the default amortized-cleanup threshold
// of 2000 retirements (spec.md §4.A's "fixed threshold (e.g., 2000)").
func WithRetireThreshold(n uint32) Option {
	return func(o *engineOptions) { o.retireThreshold = n }
}

// WithDeamortizedReclamation enables round-robin deamortized cleanup
// from construction, equivalent to calling EnableDeamortizedReclamation
// immediately. batchSize is the number of retired candidates examined
// per Retire call once the threshold is reached; spec.md §9 calls the
// exact batch size "tuning, not contract" (the source uses 2).
func WithDeamortizedReclamation(batchSize int32) Option {
	return func(o *engineOptions) {
		o.deamortized = true
		o.batchSize = batchSize
	}
}

// New constructs a hazard-pointer engine whose Cleanup calls dispose on
// every retired garbage pointer no holder protects.
func New[T any](dispose func(*T), opts ...Option) *Engine[T] {
	o := engineOptions{retireThreshold: 2000, batchSize: 2}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Engine[T]{dispose: dispose}
	e.retireThreshold.Store(o.retireThreshold)
	e.deamortizeBatch.Store(o.batchSize)
	if o.deamortized {
		e.deamortized.Store(true)
	}
	return e
}

// EnableDeamortizedReclamation switches the engine to round-robin mode,
// where each Retire call processes at most the configured batch size of
// eligible candidates instead of sweeping the whole retired list at
// once — spec.md §4.A's "tightening worst-case store latency."
func (e *Engine[T]) EnableDeamortizedReclamation() {
	e.deamortized.Store(true)
}

// Holder is a single acquired hazard-pointer slot. Acquire one per
// critical section that needs to dereference a shared.Pointer-protected
// value; release it (Close) as soon as the critical section ends.
type Holder[T any] struct {
	engine *Engine[T]
	s      *slot[T]
}

// Acquire hands out a hazard slot for the calling goroutine's use. It
// first scans the engine's monotonically growing slot list for one not
// currently in use (inUse CAS false->true); if every existing slot is
// taken, it allocates a new one and lock-free prepends it to the list.
// The slot list never shrinks for the lifetime of the process, matching
// spec.md's "intrusive linked list of slots leaks by design."
func (e *Engine[T]) Acquire() *Holder[T] {
	for s := e.slotsHead.Load(); s != nil; s = s.next {
		if s.inUse.CompareAndSwap(false, true) {
			return &Holder[T]{engine: e, s: s}
		}
	}
	ns := &slot[T]{}
	ns.inUse.Store(true)
	for {
		head := e.slotsHead.Load()
		ns.next = head
		if e.slotsHead.CompareAndSwap(head, ns) {
			return &Holder[T]{engine: e, s: ns}
		}
	}
}

// Protect is spec.md §4.A's protect(src): publish src's current value
// into this holder's slot, re-read src, and retry until the published
// value matches the freshest read. Between the publish and the
// light-fence re-read, a concurrent writer that has already issued its
// heavy fence is guaranteed to observe the publication before deciding
// whether the pointer is unprotected.
func (h *Holder[T]) Protect(src *atomic.Pointer[T]) *T {
	for {
		p := src.Load()
		h.s.protected.Store(p)
		fence.Light()
		p2 := src.Load()
		if p == p2 {
			return p
		}
	}
}

// Release clears this holder's protected pointer without giving the
// slot back to the engine, for callers that want to protect a sequence
// of different addresses from the same Holder.
func (h *Holder[T]) Release() {
	h.s.protected.Store(nil)
}

// Close releases the protected pointer and returns the slot to the
// engine's free pool for reuse by a future Acquire, mirroring spec.md's
// "handed out on thread first use; returned on thread exit" — translated
// to Go's goroutine model as "returned when the critical section ends."
func (h *Holder[T]) Close() {
	h.Release()
	h.s.inUse.Store(false)
}

// Retire appends p to the engine's retired list. If the retired count
// since the last cleanup reaches the configured threshold (and
// deamortized mode is not active), Retire triggers a full Cleanup
// inline. In deamortized mode, Retire instead processes at most the
// configured batch size of retired candidates itself, once the
// threshold has first been reached.
func (e *Engine[T]) Retire(p *T) {
	n := &retiredNode[T]{ptr: p}
	for {
		head := e.retiredHead.Load()
		n.next = head
		if e.retiredHead.CompareAndSwap(head, n) {
			break
		}
	}
	count := e.retiredLen.Add(1)
	if count < e.retireThreshold.Load() {
		return
	}
	if e.deamortized.Load() {
		e.cleanupBatch(e.deamortizeBatch.Load())
		return
	}
	e.Cleanup()
}

// protectedSet returns the sorted, deduplicated union of every slot's
// currently protected pointer, after a heavy fence forces every
// holder's prior Protect publication to be globally visible. A sorted
// slice plus binary search is used instead of a map: the reclamation
// path already pays for the heavy fence, so this keeps the rest of the
// scan allocation-light (no map bucket growth) on what spec.md's
// deamortized mode treats as a latency-sensitive call.
func (e *Engine[T]) protectedSet() []uintptr {
	fence.Heavy()
	var set []uintptr
	for s := e.slotsHead.Load(); s != nil; s = s.next {
		if p := s.protected.Load(); p != nil {
			set = append(set, uintptr(unsafe.Pointer(p)))
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

func protected[T any](set []uintptr, p *T) bool {
	_, found := slices.BinarySearch(set, uintptr(unsafe.Pointer(p)))
	return found
}

// Cleanup performs a full sweep of the retired list: every retired
// pointer not present in the current protected set is disposed exactly
// once; survivors are kept for the next cleanup pass.
func (e *Engine[T]) Cleanup() {
	head := e.retiredHead.Swap(nil)
	if head == nil {
		e.retiredLen.Store(0)
		return
	}
	set := e.protectedSet()
	e.sweep(head, set)
	e.retiredLen.Store(0)
}

func (e *Engine[T]) sweep(head *retiredNode[T], set []uintptr) {
	var survivors *retiredNode[T]
	var survivorCount uint32
	for n := head; n != nil; {
		next := n.next
		if protected(set, n.ptr) {
			n.next = survivors
			survivors = n
			survivorCount++
		} else {
			e.safeDispose(n.ptr)
		}
		n = next
	}
	if survivors == nil {
		return
	}
	for {
		old := e.retiredHead.Load()
		tail := survivors
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = old
		if e.retiredHead.CompareAndSwap(old, survivors) {
			e.retiredLen.Add(survivorCount)
			return
		}
	}
}

// cleanupBatch is the deamortized path: examine at most n retired
// candidates per call instead of the whole list, per spec.md's
// deamortized reclamation note. It still has to pop and re-push the
// full retired stack on every call to find where the unprocessed
// remainder begins, so it bounds the dispose-call fan-in per Retire,
// not the pointer-chasing cost; spec.md §9 marks the batch size
// "tuning, not contract" and this module treats the exact O() of the
// bookkeeping the same way.
func (e *Engine[T]) cleanupBatch(n int32) {
	if n <= 0 {
		return
	}
	head := e.retiredHead.Swap(nil)
	if head == nil {
		return
	}
	var batch *retiredNode[T]
	var rest *retiredNode[T]
	cur := head
	for i := int32(0); i < n && cur != nil; i++ {
		next := cur.next
		cur.next = batch
		batch = cur
		cur = next
	}
	rest = cur
	set := e.protectedSet()
	e.sweep(batch, set)
	if rest != nil {
		for {
			old := e.retiredHead.Load()
			tail := rest
			for tail.next != nil {
				tail = tail.next
			}
			tail.next = old
			if e.retiredHead.CompareAndSwap(old, rest) {
				return
			}
		}
	}
}

func (e *Engine[T]) safeDispose(p *T) {
	defer func() {
		if r := recover(); r != nil {
			xlog.Current().Log(xlog.LevelError, "hazard: disposer panicked",
				xlog.F("recovered", r))
		}
	}()
	e.dispose(p)
}
