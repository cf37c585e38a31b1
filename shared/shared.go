// Package shared implements the atomic shared pointer (ASP) spec.md
// §4.C describes: a single atomic slot holding shared ownership of a
// control block, with load/store/exchange/compare-exchange, backed by
// refcount's wait-free counter and hazard's reclamation engine.
//
// Control blocks are drawn from a sync.Pool private to each Pointer[T]
// and returned to it only once the hazard engine confirms no reader
// still protects that address — see SPEC_FULL.md §4.C for why this
// makes the hazard engine load-bearing even on a garbage-collected
// runtime: sync.Pool genuinely recycles addresses, and that reuse is
// exactly the race hazard pointers exist to prevent.
package shared

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/errs"
	"github.com/joeycumines/go-lockfree/hazard"
	"github.com/joeycumines/go-lockfree/refcount"
)

// MemOrder is the memory-ordering spectrum spec.md §4.C requires every
// ASP operation to support, modeled as a small closed enum (the same
// pattern this codebase uses for eventloop.LogLevel and
// eventloop.FastPathMode) rather than as separate function variants.
// Every Pointer[T] method below accepts one; Go's memory model already
// gives atomic.Pointer and atomic.Uint32 acquire/release semantics on
// every operation, so relaxed orderings are accepted but not currently
// distinguished from the stronger ones — they exist so call sites can
// document and later tighten their intent without an API break.
type MemOrder int

const (
	Relaxed MemOrder = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

// ctrl is the type-erased control-block handle a Shared/Weak pair of
// different payload types can share ownership of, which is what makes
// Alias possible: Shared[U].Drop releases the *original* block's
// reference counts even though its Value() points at an unrelated U.
type ctrl interface {
	acquireStrong() bool
	releaseStrong()
	acquireWeak() bool
	releaseWeak()
}

// block is the control block spec.md §3 describes: owned by this
// package, collected by hazard.Engine. It carries its own engine
// reference (whose disposer returns it to the pool) and its own dispose
// function, so a block can be released correctly even when reached
// only through an aliased Shared[U] of some unrelated type.
type block[T any] struct {
	strong  refcount.Counter
	weak    atomic.Uint32
	value   T
	dispose func(*T)
	engine  *hazard.Engine[block[T]]
}

func (b *block[T]) acquireStrong() bool { return b.strong.IncrementIfNonZero(1) }

func (b *block[T]) releaseStrong() {
	if b.strong.Decrement(1) {
		if b.dispose != nil {
			b.dispose(&b.value)
		}
		b.releaseWeak()
	}
}

func (b *block[T]) acquireWeak() bool {
	for {
		cur := b.weak.Load()
		if cur == 0 {
			return false
		}
		if b.weak.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (b *block[T]) releaseWeak() {
	if b.weak.Add(^uint32(0)) == 0 {
		b.engine.Retire(b)
	}
}

// EnableSelf is embedded by a payload type T that wants a weak
// self-reference populated on first construction into a Shared[T], the
// "ESFT" (enable-shared-from-this) feature spec.md §4.C describes.
type EnableSelf[T any] struct {
	weak atomic.Pointer[Weak[T]]
}

// WeakFromThis returns the weak handle populated by Pointer[T].New, or
// the zero Weak if this payload was never wrapped in a Shared[T].
func (e *EnableSelf[T]) WeakFromThis() Weak[T] {
	if w := e.weak.Load(); w != nil {
		return *w
	}
	return Weak[T]{}
}

type selfEnabler[T any] interface {
	setSelf(Weak[T])
}

func (e *EnableSelf[T]) setSelf(w Weak[T]) { e.weak.Store(&w) }

// Pointer is the atomic shared pointer itself: one atomic slot holding
// shared ownership of a block[T].
type Pointer[T any] struct {
	slot    atomic.Pointer[block[T]]
	engine  *hazard.Engine[block[T]]
	pool    sync.Pool
	dispose func(*T)
}

// New constructs an empty Pointer[T]. dispose, if non-nil, is called
// exactly once on a payload when its owning block's strong count first
// reaches zero.
func New[T any](dispose func(*T)) *Pointer[T] {
	p := &Pointer[T]{dispose: dispose}
	p.pool.New = func() any { return new(block[T]) }
	p.engine = hazard.New[block[T]](func(b *block[T]) {
		var zero T
		b.value = zero
		b.dispose = nil
		p.pool.Put(b)
	})
	return p
}

func (p *Pointer[T]) newBlock(v T) *block[T] {
	b := p.pool.Get().(*block[T])
	b.strong.Reset(1)
	b.weak.Store(1)
	b.value = v
	b.dispose = p.dispose
	b.engine = p.engine
	return b
}

// Shared is a strong, owning handle to a control block.
type Shared[T any] struct {
	c   ctrl
	val *T
}

// IsEmpty reports whether this handle owns no block.
func (s Shared[T]) IsEmpty() bool { return s.c == nil }

// Value returns a pointer to the payload this handle refers to. Calling
// Value on an empty Shared returns nil.
func (s Shared[T]) Value() *T { return s.val }

// Clone returns a new strong handle sharing the same control block,
// incrementing its strong count. Panics if the block's strong count has
// already reached zero, which indicates a use-after-drop bug in the
// caller (a live Shared handle is itself proof the count cannot
// legitimately be zero).
func (s Shared[T]) Clone() Shared[T] {
	if s.c == nil {
		return Shared[T]{}
	}
	if !s.c.acquireStrong() {
		panic("shared: Clone on a handle whose control block already reached zero")
	}
	return s
}

// Drop releases this handle's strong reference.
func (s Shared[T]) Drop() {
	if s.c != nil {
		s.c.releaseStrong()
	}
}

// Downgrade returns a new weak handle to the same control block,
// incrementing its weak count.
func (s Shared[T]) Downgrade() Weak[T] {
	if s.c == nil || !s.c.acquireWeak() {
		return Weak[T]{}
	}
	return Weak[T]{c: s.c, val: s.val}
}

// Weak is a non-owning weak handle to a control block.
type Weak[T any] struct {
	c   ctrl
	val *T
}

// IsEmpty reports whether this handle refers to no block.
func (w Weak[T]) IsEmpty() bool { return w.c == nil }

// Lock attempts to upgrade to a strong handle, matching spec.md's "lock
// form returns empty": ok is false (and the returned Shared is empty) if
// the block's strong count has already reached zero.
func (w Weak[T]) Lock() (Shared[T], bool) {
	if w.c == nil {
		return Shared[T]{}, false
	}
	if !w.c.acquireStrong() {
		return Shared[T]{}, false
	}
	return Shared[T]{c: w.c, val: w.val}, true
}

// Upgrade is the direct-construction upgrade form spec.md §4.C
// describes: it signals failure via errs.ErrWeakExpired instead of
// returning an empty handle plus a bool.
func (w Weak[T]) Upgrade() (Shared[T], error) {
	s, ok := w.Lock()
	if !ok {
		return Shared[T]{}, errs.ErrWeakExpired
	}
	return s, nil
}

// Clone returns a new weak handle to the same block, incrementing the
// weak count. Returns the zero Weak if the block has already been fully
// released (weak count already at zero).
func (w Weak[T]) Clone() Weak[T] {
	if w.c == nil || !w.c.acquireWeak() {
		return Weak[T]{}
	}
	return w
}

// Drop releases this handle's weak reference, retiring the underlying
// block through the hazard engine if this was the last one.
func (w Weak[T]) Drop() {
	if w.c != nil {
		w.c.releaseWeak()
	}
}

// New returns a fresh strong handle owning a newly allocated block
// holding v. If T embeds EnableSelf[T], its weak self-reference is
// populated before New returns.
func (p *Pointer[T]) New(v T) Shared[T] {
	b := p.newBlock(v)
	s := Shared[T]{c: b, val: &b.value}
	if se, ok := any(&b.value).(selfEnabler[T]); ok {
		if !b.acquireWeak() {
			panic("shared: unreachable: fresh block's weak count was already zero")
		}
		se.setSelf(Weak[T]{c: b, val: &b.value})
	}
	return s
}

// Alias returns a Shared handle that shares ownership (and therefore
// lifetime) with outer's control block, but whose Value points at a
// caller-chosen sub-object reachable through outer — spec.md §4.C's
// aliasing constructor. sub must remain valid for as long as the
// returned handle (and anything cloned from it) is alive, which holds
// automatically when sub points inside *outer.Value() or something it
// transitively owns. The result is for direct use (Value/Clone/Drop);
// it is not installable into a Pointer[U]'s own slot, since it carries
// outer's block, not a block[U].
func Alias[T, U any](outer Shared[T], sub *U) Shared[U] {
	if outer.c == nil {
		return Shared[U]{}
	}
	if !outer.c.acquireStrong() {
		panic("shared: Alias on a handle whose control block already reached zero")
	}
	return Shared[U]{c: outer.c, val: sub}
}

// Load is spec.md §4.C's Load: repeatedly Protect the slot through a
// fresh hazard Holder, and on each non-nil read attempt a resurrecting
// strong-count increment, retrying only if that block was concurrently
// disposed between the protect and the increment.
func (p *Pointer[T]) Load(order MemOrder) Shared[T] {
	h := p.engine.Acquire()
	defer h.Close()
	for {
		b := h.Protect(&p.slot)
		if b == nil {
			return Shared[T]{}
		}
		if b.acquireStrong() {
			return Shared[T]{c: b, val: &b.value}
		}
		// b was disposed between the protect and the increment attempt;
		// loop and re-read.
	}
}

func (p *Pointer[T]) asBlock(s Shared[T]) *block[T] {
	if s.c == nil {
		return nil
	}
	return s.c.(*block[T])
}

// Store installs desired, releasing whatever block was previously
// installed. Ownership of desired's strong reference transfers into
// the Pointer.
func (p *Pointer[T]) Store(desired Shared[T], order MemOrder) {
	old := p.slot.Swap(p.asBlock(desired))
	if old != nil {
		old.releaseStrong()
	}
}

// Exchange installs desired and returns a strong handle to whatever was
// previously installed (empty if nothing was).
func (p *Pointer[T]) Exchange(desired Shared[T], order MemOrder) Shared[T] {
	old := p.slot.Swap(p.asBlock(desired))
	if old == nil {
		return Shared[T]{}
	}
	return Shared[T]{c: old, val: &old.value}
}

// CompareAndSwap is the weak compare-exchange form: a single attempt
// that may spuriously fail even when the slot does hold expected's
// block. On success, the Pointer takes ownership of desired's strong
// reference and expected's reference is released on the caller's
// behalf; on failure, expected is refreshed to the slot's current value
// and the caller retains ownership of desired (it was not installed).
func (p *Pointer[T]) CompareAndSwap(expected *Shared[T], desired Shared[T], success, failure MemOrder) bool {
	exp := p.asBlock(*expected)
	if p.slot.CompareAndSwap(exp, p.asBlock(desired)) {
		if exp != nil {
			// Two distinct strong references are owed a release here: the
			// slot's own reference to the block it just swapped out (the
			// same release Store gives old above) and the separate
			// reference expected's handle was holding (the one this
			// function is documented to consume on the caller's behalf).
			exp.releaseStrong()
			exp.releaseStrong()
		}
		return true
	}
	*expected = p.Load(failure)
	return false
}

// CompareAndSwapStrong retries through spurious CAS failure, re-loading
// and re-checking the underlying block pointer (the ABA check spec.md
// §4.C calls for) until either the swap succeeds or the slot's block no
// longer matches expected's.
func (p *Pointer[T]) CompareAndSwapStrong(expected *Shared[T], desired Shared[T], success, failure MemOrder) bool {
	exp := p.asBlock(*expected)
	for {
		cur := p.slot.Load()
		if cur != exp {
			*expected = p.Load(failure)
			return false
		}
		if p.slot.CompareAndSwap(exp, p.asBlock(desired)) {
			if exp != nil {
				// Same double release as CompareAndSwap's success path: the
				// slot's own reference plus the reference expected's handle
				// was holding.
				exp.releaseStrong()
				exp.releaseStrong()
			}
			return true
		}
	}
}

// IsLockFree reports whether this Pointer's operations are lock-free.
// They always are: every operation above is built from atomic.Pointer
// and refcount.Counter, neither of which ever blocks.
func (p *Pointer[T]) IsLockFree() bool { return true }
