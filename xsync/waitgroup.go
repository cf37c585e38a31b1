package xsync

import "sync"

// WaitGroup is a counter plus condition variable per spec.md §4.G: Done
// wakes every waiter once the counter reaches zero, Wait blocks until
// it does. Unlike sync.WaitGroup, Add/Done/Wait may be called in any
// order relative to each other (no "Add must happen before Wait"
// requirement), since every access is serialized through the mutex
// rather than relying on Add/Wait's happens-before ordering.
type WaitGroup struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewWaitGroup constructs a ready-to-use WaitGroup.
func NewWaitGroup() *WaitGroup {
	wg := &WaitGroup{}
	wg.cond = sync.NewCond(&wg.mu)
	return wg
}

// Add adjusts the counter by delta, waking every Wait call if the
// counter reaches zero. Panics if the counter would go negative.
func (w *WaitGroup) Add(delta int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count += delta
	if w.count < 0 {
		panic("xsync: WaitGroup counter went negative")
	}
	if w.count == 0 {
		w.cond.Broadcast()
	}
}

// Done decrements the counter by one.
func (w *WaitGroup) Done() { w.Add(-1) }

// Wait blocks until the counter is zero.
func (w *WaitGroup) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.count > 0 {
		w.cond.Wait()
	}
}
