package xsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpinlockMutualExclusion(t *testing.T) {
	var s Spinlock
	var counter int
	var wg sync.WaitGroup
	const goroutines = 16
	const perGoroutine = 2000
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s.Lock()
				counter++
				s.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, goroutines*perGoroutine, counter)
}

func TestSpinlockTryLock(t *testing.T) {
	var s Spinlock
	require.True(t, s.TryLock())
	require.False(t, s.TryLock())
	s.Unlock()
	require.True(t, s.TryLock())
}

func TestSpinlockGuardReleasesOnDefer(t *testing.T) {
	var s Spinlock
	func() {
		g := s.Guard()
		defer g.Release()
	}()
	require.True(t, s.TryLock())
	s.Unlock()
}

func TestSpinlockGuardReleasesOnPanic(t *testing.T) {
	var s Spinlock
	func() {
		defer func() { _ = recover() }()
		g := s.Guard()
		defer g.Release()
		panic("boom")
	}()
	require.True(t, s.TryLock())
	s.Unlock()
}
