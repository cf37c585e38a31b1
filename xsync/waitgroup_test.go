package xsync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitGroupWaitBlocksUntilZero(t *testing.T) {
	wg := NewWaitGroup()
	wg.Add(3)

	var done atomic.Bool
	waitReturned := make(chan struct{})
	go func() {
		wg.Wait()
		done.Store(true)
		close(waitReturned)
	}()

	wg.Done()
	wg.Done()
	require.False(t, done.Load())
	wg.Done()

	select {
	case <-waitReturned:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after counter reached zero")
	}
	require.True(t, done.Load())
}

func TestWaitGroupWaitReturnsImmediatelyWhenAlreadyZero(t *testing.T) {
	wg := NewWaitGroup()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait on a zero counter should return immediately")
	}
}

func TestWaitGroupNegativeCounterPanics(t *testing.T) {
	wg := NewWaitGroup()
	require.Panics(t, func() { wg.Done() })
}
