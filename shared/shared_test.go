package shared

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/go-lockfree/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreThenLoadRoundTrip(t *testing.T) {
	p := New[int](nil)
	s := p.New(42)
	p.Store(s, SeqCst)

	loaded := p.Load(SeqCst)
	require.False(t, loaded.IsEmpty())
	require.Equal(t, 42, *loaded.Value())
	loaded.Drop()
}

func TestLoadOnEmptyPointer(t *testing.T) {
	p := New[int](nil)
	loaded := p.Load(SeqCst)
	require.True(t, loaded.IsEmpty())
	require.Nil(t, loaded.Value())
}

// TestSingleStoreVisibility is spec.md §8 scenario 1.
func TestSingleStoreVisibility(t *testing.T) {
	var disposeCount atomic.Int32
	p := New[int](func(v *int) { disposeCount.Add(1) })

	var wg sync.WaitGroup
	wg.Add(2)
	var observed int32 = -1

	go func() {
		defer wg.Done()
		p.Store(p.New(42), SeqCst)
	}()
	go func() {
		defer wg.Done()
	}()
	wg.Wait()

	loaded := p.Load(SeqCst)
	if !loaded.IsEmpty() {
		observed = int32(*loaded.Value())
		loaded.Drop()
	}
	assert.True(t, observed == -1 || observed == 42)
}

func TestCompareAndSwapStrongSucceedsThenFails(t *testing.T) {
	p := New[int](nil)
	a := p.New(1)
	p.Store(a.Clone(), SeqCst)

	expected := p.Load(SeqCst)
	b := p.New(2)
	ok := p.CompareAndSwapStrong(&expected, b, SeqCst, SeqCst)
	require.True(t, ok)
	// On success CompareAndSwapStrong already released expected's strong
	// reference on the caller's behalf; dropping it again here would
	// double-release the same unit.

	stale := a
	c := p.New(3)
	ok = p.CompareAndSwapStrong(&stale, c, SeqCst, SeqCst)
	require.False(t, ok)
	assert.Equal(t, 2, *stale.Value())
	stale.Drop()
	c.Drop()
	a.Drop()
}

// TestCompareAndSwapReleasesDisplacedBlockExactlyOnce guards against a
// regression where a successful CompareAndSwap under-releases the block
// it swaps out of the slot: both the slot's own reference and the
// reference the caller's expected handle was holding must be released,
// or the displaced block's strong count never reaches zero and its
// disposer never runs.
func TestCompareAndSwapReleasesDisplacedBlockExactlyOnce(t *testing.T) {
	var disposeCount atomic.Int32
	p := New[int](func(v *int) { disposeCount.Add(1) })

	a := p.New(1)
	p.Store(a.Clone(), SeqCst)

	expected := p.Load(SeqCst)
	desired := p.New(2)
	ok := p.CompareAndSwap(&expected, desired, SeqCst, SeqCst)
	require.True(t, ok)

	require.Equal(t, int32(0), disposeCount.Load())
	a.Drop()
	assert.Equal(t, int32(1), disposeCount.Load())

	loaded := p.Load(SeqCst)
	require.Equal(t, 2, *loaded.Value())
	loaded.Drop()
}

func TestWeakUpgradeAfterExpiry(t *testing.T) {
	p := New[int](nil)
	s := p.New(7)
	w := s.Downgrade()

	locked, ok := w.Lock()
	require.True(t, ok)
	assert.Equal(t, 7, *locked.Value())
	locked.Drop()

	s.Drop()
	_, ok = w.Lock()
	assert.False(t, ok)

	_, err := w.Upgrade()
	assert.ErrorIs(t, err, errs.ErrWeakExpired)
	w.Drop()
}
