//go:build !linux

package fence

import "sync/atomic"

// heavyImpl on non-Linux platforms falls back to a sequentially
// consistent fence, per spec.md §4.A's "on other platforms fall back to
// a sequentially consistent thread fence." Go has no standalone
// std::atomic_thread_fence equivalent, so an uncontended CAS against a
// shared counter stands in: it forces a round trip through the cache
// coherency protocol on every call, which is the closest portable
// approximation available without cgo.
var heavyFenceWord atomic.Uint64

func heavyImpl() {
	for {
		v := heavyFenceWord.Load()
		if heavyFenceWord.CompareAndSwap(v, v+1) {
			return
		}
	}
}
