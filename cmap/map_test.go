package cmap

import (
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/joeycumines/go-lockfree/errs"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)

	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("b", 2))

	acc, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, acc.Value())
	acc.Close()

	acc, ok = m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, acc.Value())
	acc.Close()

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestSetOverwritesExistingKey(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)

	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("a", 2))

	acc, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, acc.Value())
	acc.Close()
}

func TestDeleteRemovesKey(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)

	require.NoError(t, m.Set("a", 1))
	require.True(t, m.Delete("a"))
	_, ok := m.Get("a")
	require.False(t, ok)

	// Deleting an absent key is a no-op that still reports true.
	require.True(t, m.Delete("never-inserted"))
}

func TestSetDeleteReinsert(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)

	require.NoError(t, m.Set("a", 1))
	require.True(t, m.Delete("a"))
	require.NoError(t, m.Set("a", 99))

	acc, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 99, acc.Value())
	acc.Close()
}

// TestProbeExhaustedWhenEveryLevelBucketTaken forces a single-level map
// small enough that two distinct keys collide on the same bucket index,
// so the second Set call has nowhere to probe.
func TestProbeExhaustedWhenEveryLevelBucketTaken(t *testing.T) {
	m, err := New[int, int](1, WithLevels(1))
	require.NoError(t, err)
	require.Len(t, m.capacities, 1)
	capacity := uint64(m.capacities[0])

	require.NoError(t, m.Set(0, 0))
	// A key whose hash collides with key 0's bucket index occupies the
	// map's only slot for that bucket; keep trying candidates until we
	// find one (birthday-paradox odds make this fast for a tiny table).
	var collided bool
	for candidate := 1; candidate < 100000; candidate++ {
		if m.hash(candidate)%capacity == m.hash(0)%capacity {
			err := m.Set(candidate, 1)
			require.ErrorIs(t, err, errs.ErrProbeExhausted)
			collided = true
			break
		}
	}
	require.True(t, collided, "did not find a colliding key within search bound")
}

func TestWithMaxCellsTriggersErrAllocation(t *testing.T) {
	m, err := New[int, int](16, WithMaxCells(2))
	require.NoError(t, err)

	// Each Set allocates a key cell and a value cell on first insert, so
	// the second distinct key exhausts a budget of two.
	require.NoError(t, m.Set(1, 1))
	err = m.Set(2, 2)
	require.ErrorIs(t, err, errs.ErrAllocation)

	// Overwriting an existing key only allocates a replacement value
	// cell, but this still fails: the key cell for 1 and its first value
	// cell already consume the whole budget, and the old value cell is
	// only released after the new one has been allocated.
	err = m.Set(1, 100)
	require.ErrorIs(t, err, errs.ErrAllocation)
}

func TestWithMaxCellsBudgetFreedOnDelete(t *testing.T) {
	m, err := New[int, int](16, WithMaxCells(2))
	require.NoError(t, err)

	require.NoError(t, m.Set(1, 1))
	require.True(t, m.Delete(1))
	// Deleting key 1 frees both its cells, so inserting a fresh key
	// should succeed again.
	require.NoError(t, m.Set(2, 2))
}

func TestNewReturnsErrLevelUndersizedForPathologicalConfig(t *testing.T) {
	// A low target occupancy makes the first pass's per-level shares sum
	// to several times expectedCapacity, so the rescale pass must shrink
	// the first level's share well below what it originally computed —
	// exactly the case errs.ErrLevelUndersized exists to catch.
	_, err := New[int, int](1000, WithLevels(5), WithOccupancy(0.1))
	require.ErrorIs(t, err, errs.ErrLevelUndersized)
}

func TestWalkAllVisitsEveryEntry(t *testing.T) {
	m, err := New[string, int](64)
	require.NoError(t, err)
	want := map[string]int{}
	for i := 0; i < 20; i++ {
		k := "k" + strconv.Itoa(i)
		require.NoError(t, m.Set(k, i))
		want[k] = i
	}

	got := map[string]int{}
	m.WalkAll(func(k string, v int) bool {
		got[k] = v
		return true
	})
	require.Equal(t, want, got)
}

func TestWalkAllStopsEarly(t *testing.T) {
	m, err := New[string, int](64)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, m.Set("k"+strconv.Itoa(i), i))
	}

	var visited int
	m.WalkAll(func(string, int) bool {
		visited++
		return visited < 5
	})
	require.Equal(t, 5, visited)
}

func TestWalkKeyFindsInstalledValue(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)
	require.NoError(t, m.Set("a", 7))

	var found int
	var calls int
	m.WalkKey("a", func(v int) bool {
		calls++
		found = v
		return true
	})
	require.Equal(t, 1, calls)
	require.Equal(t, 7, found)
}

func TestIteratorVisitsEveryEntryExactlyOnce(t *testing.T) {
	m, err := New[int, int](64)
	require.NoError(t, err)
	const n = 30
	for i := 0; i < n; i++ {
		require.NoError(t, m.Set(i, i*i))
	}

	seen := map[int]int{}
	it := m.Iterator()
	for {
		k, acc, ok := it.Next()
		if !ok {
			break
		}
		seen[k] = acc.Value()
		acc.Close()
	}
	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i*i, seen[i])
	}
}

// TestConcurrentInsertLookupDeleteReinsert exercises the structure
// analogously to spec.md §8's hashmap scenario: many goroutines racing
// Set, Get, and Delete across an overlapping key space, checking only
// properties that must hold unconditionally under the race (no panic,
// no torn values, accessors always return a value the map actually
// held).
func TestConcurrentInsertLookupDeleteReinsert(t *testing.T) {
	m, err := New[int, int](256)
	require.NoError(t, err)

	const goroutines = 16
	const perGoroutine = 2000
	const keySpace = 64

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := (g*perGoroutine + i) % keySpace
				switch i % 3 {
				case 0:
					_ = m.Set(key, g*1000+i)
				case 1:
					if acc, ok := m.Get(key); ok {
						_ = acc.Value()
						acc.Close()
					}
				case 2:
					m.Delete(key)
				}
			}
		}()
	}
	wg.Wait()

	// The map must still answer Get/Set/Delete sanely after the race.
	require.NoError(t, m.Set(999999, 42))
	acc, ok := m.Get(999999)
	require.True(t, ok)
	require.Equal(t, 42, acc.Value())
	acc.Close()
}

func TestAccessorCloseIsIdempotent(t *testing.T) {
	m, err := New[string, int](16)
	require.NoError(t, err)
	require.NoError(t, m.Set("a", 1))
	acc, ok := m.Get("a")
	require.True(t, ok)
	acc.Close()
	require.NotPanics(t, func() { acc.Close() })
}

func TestAccessorValueOnEmptyIsZero(t *testing.T) {
	var acc Accessor[int]
	require.True(t, acc.IsEmpty())
	require.Equal(t, 0, acc.Value())
}

func ExampleMap() {
	m, err := New[string, int](16)
	if err != nil {
		panic(err)
	}
	_ = m.Set("answer", 42)
	acc, _ := m.Get("answer")
	defer acc.Close()
	fmt.Println(acc.Value())
	// Output: 42
}
