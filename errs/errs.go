// Package errs declares the sentinel errors shared across go-lockfree's
// components, mirroring spec.md §7's error-kind taxonomy and modeled on
// eventloop/errors.go's errors.Is/errors.As-friendly typed-error style.
//
// Backpressure (queue full/empty, deque empty) and hashmap lookup misses
// are never represented as errors here — those are reported by a plain
// bool/ok result, since they're expected, high-frequency outcomes on a
// hot path, not exceptional ones.
package errs

import "errors"

var (
	// ErrProbeExhausted is returned by cmap.Map.Set when no level's probe
	// sequence admits the key (spec.md §4.F, §7: "probe exhaustion").
	ErrProbeExhausted = errors.New("lockfree: hashmap insert: probe sequence exhausted")

	// ErrAllocation is returned by cmap.Map.Set when allocating a key or
	// value cell would exceed the Map's cmap.WithMaxCells budget (spec.md
	// §7: "allocation failure").
	ErrAllocation = errors.New("lockfree: hashmap insert: cell allocation failed")

	// ErrLevelUndersized is returned by cmap.New when the iterative
	// multi-level sizing pass produces a level smaller than its required
	// share of the requested capacity. spec.md §9 flags this as an open
	// question in the source and says not to guess: this module treats
	// it as a configuration error surfaced to the caller.
	ErrLevelUndersized = errors.New("lockfree: hashmap: multi-level sizing produced an undersized level")

	// ErrWeakExpired is returned by shared.Weak.Upgrade (the direct
	// construction form spec.md §4.C describes) when the control block's
	// strong count has already reached zero. The Lock() form instead
	// returns a zero Shared and false, matching spec.md's "lock form
	// returns empty" contract.
	ErrWeakExpired = errors.New("lockfree: weak pointer expired")
)
