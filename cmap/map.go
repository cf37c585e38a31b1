// Package cmap implements the multi-level concurrent hashmap spec.md
// §4.F describes: an open-addressed structure with a fixed number of
// prime-sized levels, where insertion probes level by level (never
// chaining within a level) and every occupied key/value slot is a
// reference-counted cell so lookups can hand out a live value without
// holding a lock across the caller's use of it.
//
// The probing and multi-level layout follow spec.md directly, since
// none of the example repos implement an open-addressed hashmap; the
// surrounding shape — functional options, sentinel errors, doc-comment
// density — follows the rest of this module and, through it, the
// teacher's conventions.
package cmap

import (
	"hash/maphash"
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/errs"
)

// bucket is one slot within one level: a key cell and a value cell,
// installed together and replaced independently. A nil key pointer
// marks the bucket unoccupied.
type bucket[K comparable, V any] struct {
	key   atomic.Pointer[cell[K]]
	value atomic.Pointer[cell[V]]
}

// Map is the multi-level concurrent hashmap. The zero value is not
// usable; construct with New.
type Map[K comparable, V any] struct {
	seed       maphash.Seed
	capacities []int
	levels     [][]bucket[K, V]
	maxCells   int64
	liveCells  atomic.Int64
}

// New constructs a Map sized for expectedCapacity keys. See
// computeLevelCapacities for how expectedCapacity is distributed across
// levels, and WithMaxCells for an optional cap on live cell allocation.
func New[K comparable, V any](expectedCapacity int, opts ...Option) (*Map[K, V], error) {
	if expectedCapacity < 1 {
		expectedCapacity = 1
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	capacities, err := computeLevelCapacities(expectedCapacity, cfg.levels, cfg.occupancy)
	if err != nil {
		return nil, err
	}
	levels := make([][]bucket[K, V], len(capacities))
	for i, c := range capacities {
		levels[i] = make([]bucket[K, V], c)
	}
	m := &Map[K, V]{
		seed:       maphash.MakeSeed(),
		capacities: capacities,
		levels:     levels,
		maxCells:   int64(cfg.maxCells),
	}
	return m, nil
}

func (m *Map[K, V]) hash(key K) uint64 {
	return maphash.Comparable(m.seed, key)
}

// tryAllocCell reports whether allocating one more cell stays within
// maxCells (when a budget is configured). maxCells <= 0 means
// unbounded.
func (m *Map[K, V]) tryAllocCell() bool {
	if m.maxCells <= 0 {
		return true
	}
	for {
		cur := m.liveCells.Load()
		if cur >= m.maxCells {
			return false
		}
		if m.liveCells.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (m *Map[K, V]) releaseCellAlloc() {
	if m.maxCells <= 0 {
		return
	}
	m.liveCells.Add(-1)
}

// Accessor is a live handle on a value cell, held out by Get and the
// Walk/Iterator callbacks. The holder must call Close (directly or via
// defer) once done, releasing the reference this accessor holds so the
// cell can eventually be reclaimed once every accessor and the owning
// bucket both release it.
type Accessor[V any] struct {
	c       *cell[V]
	release func()
}

// IsEmpty reports whether this Accessor carries no live value, the
// state Get/WalkKey/Iterator.Next report via their bool/continue
// results rather than ever handing out an empty Accessor — callers
// should not normally need to check this, it exists for symmetry with
// Value's zero case.
func (a Accessor[V]) IsEmpty() bool { return a.c == nil }

// Value returns the accessed value. Calling it on an empty Accessor
// returns the zero value of V.
func (a Accessor[V]) Value() V {
	if a.c == nil {
		var zero V
		return zero
	}
	return a.c.value
}

// Close releases the reference this Accessor holds. Safe to call more
// than once; only the first call has effect.
func (a *Accessor[V]) Close() {
	if a.c == nil {
		return
	}
	release := a.release
	a.c = nil
	a.release = nil
	if release != nil {
		release()
	}
}

// acquireValue resurrecting-increments cell's refcount and returns an
// Accessor wired to decrement it again on Close, or false if the cell
// had already reached zero (lost the race against a concurrent
// Delete/overwrite's release).
func (m *Map[K, V]) acquireValue(c *cell[V]) (Accessor[V], bool) {
	if c == nil || !c.strong.IncrementIfNonZero(1) {
		return Accessor[V]{}, false
	}
	return Accessor[V]{c: c, release: func() {
		if c.strong.Decrement(1) {
			m.releaseCellAlloc()
		}
	}}, true
}

// findBucket locates the bucket whose key slot compares equal to key,
// probing one bucket per level in order. It returns nil if no level
// holds the key.
func (m *Map[K, V]) findBucket(key K, h uint64) *bucket[K, V] {
	for i, capacity := range m.capacities {
		idx := h % uint64(capacity)
		b := &m.levels[i][idx]
		if kc := b.key.Load(); kc != nil && kc.value == key {
			return b
		}
	}
	return nil
}

// Get returns a live Accessor for key's current value, or false if key
// is absent. The caller must Close the returned Accessor once done with
// it.
func (m *Map[K, V]) Get(key K) (Accessor[V], bool) {
	b := m.findBucket(key, m.hash(key))
	if b == nil {
		return Accessor[V]{}, false
	}
	return m.acquireValue(b.value.Load())
}

// Set installs value under key, replacing any existing value for the
// same key in place. It probes each level's designated bucket in turn:
// an empty bucket is claimed for this key, a bucket already holding
// this key is reused, and a bucket holding a different key is skipped
// to the next level. errs.ErrProbeExhausted is returned if no level
// admits the key; errs.ErrAllocation is returned if a cell allocation
// would exceed WithMaxCells' budget.
func (m *Map[K, V]) Set(key K, value V) error {
	h := m.hash(key)

	var target *bucket[K, V]
probe:
	for i, capacity := range m.capacities {
		idx := h % uint64(capacity)
		b := &m.levels[i][idx]
		for {
			cur := b.key.Load()
			if cur == nil {
				if !m.tryAllocCell() {
					return errs.ErrAllocation
				}
				kc := newCell(key)
				if b.key.CompareAndSwap(nil, kc) {
					target = b
					break probe
				}
				m.releaseCellAlloc()
				continue
			}
			if cur.value == key {
				target = b
				break probe
			}
			break
		}
	}
	if target == nil {
		return errs.ErrProbeExhausted
	}

	if !m.tryAllocCell() {
		return errs.ErrAllocation
	}
	vc := newCell(value)
	old := target.value.Swap(vc)
	if old != nil && old.strong.Decrement(1) {
		m.releaseCellAlloc()
	}
	return nil
}

// Delete removes key's bucket, if present. It matches spec.md's literal
// wording ("scan every bucket whose key slot compares equal") by
// checking every level rather than stopping at the first match, since
// a concurrent Set racing a prior Delete can momentarily leave the same
// key installed in more than one level. Delete always returns true: a
// deletion of an absent key is a no-op, not an error.
func (m *Map[K, V]) Delete(key K) bool {
	h := m.hash(key)
	for i, capacity := range m.capacities {
		idx := h % uint64(capacity)
		b := &m.levels[i][idx]
		kc := b.key.Load()
		if kc == nil || kc.value != key {
			continue
		}
		if !b.key.CompareAndSwap(kc, nil) {
			continue
		}
		if kc.strong.Decrement(1) {
			m.releaseCellAlloc()
		}
		if vc := b.value.Swap(nil); vc != nil && vc.strong.Decrement(1) {
			m.releaseCellAlloc()
		}
	}
	return true
}

// WalkKey calls fn with every value currently installed under key
// across all levels (ordinarily at most one, per Delete's comment about
// transient duplicates), stopping early if fn returns false.
func (m *Map[K, V]) WalkKey(key K, fn func(V) bool) {
	h := m.hash(key)
	for i, capacity := range m.capacities {
		idx := h % uint64(capacity)
		b := &m.levels[i][idx]
		kc := b.key.Load()
		if kc == nil || kc.value != key {
			continue
		}
		acc, ok := m.acquireValue(b.value.Load())
		if !ok {
			continue
		}
		cont := fn(acc.Value())
		acc.Close()
		if !cont {
			return
		}
	}
}

// WalkAll calls fn with every occupied (key, value) pair in the Map, in
// level-then-bucket-index order, stopping early if fn returns false.
func (m *Map[K, V]) WalkAll(fn func(K, V) bool) {
	for i := range m.levels {
		for idx := range m.levels[i] {
			b := &m.levels[i][idx]
			kc := b.key.Load()
			if kc == nil {
				continue
			}
			acc, ok := m.acquireValue(b.value.Load())
			if !ok {
				continue
			}
			cont := fn(kc.value, acc.Value())
			acc.Close()
			if !cont {
				return
			}
		}
	}
}

// Cleanup exists for API-contract parity with hazard.Engine.Cleanup: it
// is a documented no-op, since cmap never defers reclamation the way
// the hazard-pointer engine does — a cell becomes collectible the
// instant its refcount reaches zero, with no epoch or scan to run. See
// DESIGN.md.
func (m *Map[K, V]) Cleanup() {}

// Iterator is a resumable cursor over a Map's occupied buckets,
// acquiring a fresh Accessor for each one in turn. Unlike WalkAll, it
// lets a caller pause between entries (e.g. to process one entry inside
// a larger loop) rather than committing to a single callback.
type Iterator[K comparable, V any] struct {
	m     *Map[K, V]
	level int
	idx   int
}

// Iterator returns a new cursor positioned before the first bucket.
func (m *Map[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{m: m}
}

// Next advances the cursor to the next occupied bucket and returns its
// key and a live Accessor for its value. ok is false once every bucket
// has been visited, at which point key and the Accessor are zero
// values. The caller must Close each returned Accessor.
func (it *Iterator[K, V]) Next() (key K, acc Accessor[V], ok bool) {
	m := it.m
	for it.level < len(m.levels) {
		level := m.levels[it.level]
		for it.idx < len(level) {
			b := &level[it.idx]
			it.idx++
			kc := b.key.Load()
			if kc == nil {
				continue
			}
			a, found := m.acquireValue(b.value.Load())
			if !found {
				continue
			}
			return kc.value, a, true
		}
		it.level++
		it.idx = 0
	}
	var zeroKey K
	return zeroKey, Accessor[V]{}, false
}
