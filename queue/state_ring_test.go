package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	producer int
	seq      int
}

func TestStateRingTryPushTryPopRoundTrip(t *testing.T) {
	r := NewStateRing[payload](4)
	require.True(t, r.TryPush(payload{1, 1}))
	require.True(t, r.TryPush(payload{1, 2}))
	v, ok := r.TryPop()
	require.True(t, ok)
	require.Equal(t, payload{1, 1}, v)
	v, ok = r.TryPop()
	require.True(t, ok)
	require.Equal(t, payload{1, 2}, v)
	_, ok = r.TryPop()
	require.False(t, ok)
}

func TestStateRingTryPushFailsWhenFull(t *testing.T) {
	r := NewStateRing[int](2)
	require.True(t, r.TryPush(1))
	require.True(t, r.TryPush(2))
	require.False(t, r.TryPush(3))
	require.True(t, r.WasFull())
}

func TestStateRingBlockingPushPop(t *testing.T) {
	r := NewStateRing[string](2)
	r.Push("hello")
	require.Equal(t, "hello", r.Pop())
}

func TestStateRingClearsSlotAfterConsume(t *testing.T) {
	// Payload types without a natural sentinel are exactly what
	// StateRing is for; pointers are the clearest demonstration that a
	// consumed slot cannot keep a stale reference alive.
	r := NewStateRing[*int](1)
	v := 42
	r.Push(&v)
	got := r.Pop()
	require.Same(t, &v, got)
	require.Equal(t, int(stateEmpty), int(r.states[0].Load()))
	require.Nil(t, r.values[0])
}

// TestStateRingMPMCExactTransfer mirrors spec.md §8 scenario 2 for the
// state-byte variant.
func TestStateRingMPMCExactTransfer(t *testing.T) {
	const producers = 4
	const consumers = 4
	const itemsPerProducer = 3000
	const total = producers * itemsPerProducer

	r := NewStateRing[payload](64, WithIndexRemap())

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				r.Push(payload{producer: id, seq: i})
			}
		}(p)
	}

	counts := make([][]int32, producers)
	for i := range counts {
		counts[i] = make([]int32, itemsPerProducer)
	}
	var countsMu sync.Mutex
	var consumed atomic.Int64
	var cwg sync.WaitGroup
	cwg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer cwg.Done()
			for {
				if consumed.Load() >= int64(total) {
					return
				}
				v, ok := r.TryPop()
				if !ok {
					continue
				}
				countsMu.Lock()
				counts[v.producer][v.seq]++
				countsMu.Unlock()
				consumed.Add(1)
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	require.Equal(t, int64(total), consumed.Load())
	for p := range counts {
		for seq, c := range counts[p] {
			require.Equalf(t, int32(1), c, "producer %d seq %d observed %d times", p, seq, c)
		}
	}
}
