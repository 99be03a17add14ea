package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewLock(kv.NewMemoryStore(), LockConfig{})

	ok, err := l.TryAcquire(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryAcquire(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire on a held lock must fail")

	// A different fingerprint is independent.
	ok, err = l.TryAcquire(ctx, "fp-2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, "fp-1"))
	ok, err = l.TryAcquire(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, ok, "released lock can be re-acquired")
}

func TestLock_StaleTakeover(t *testing.T) {
	ctx := context.Background()
	l := NewLock(kv.NewMemoryStore(), LockConfig{Stale: 5 * time.Second})

	clock := time.Now()
	l.now = func() time.Time { return clock }

	ok, err := l.TryAcquire(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, ok)

	clock = clock.Add(3 * time.Second)
	ok, _ = l.TryAcquire(ctx, "fp-1")
	assert.False(t, ok, "a three-second-old holder is still live")

	clock = clock.Add(3 * time.Second)
	ok, err = l.TryAcquire(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, ok, "a six-second-old holder is stale and may be replaced")
}

func TestLock_ReleaseUnheldIsHarmless(t *testing.T) {
	l := NewLock(kv.NewMemoryStore(), LockConfig{})
	assert.NoError(t, l.Release(context.Background(), "fp-1"))
}

func TestLock_ConcurrentAcquireAdmitsOne(t *testing.T) {
	ctx := context.Background()
	l := NewLock(kv.NewMemoryStore(), LockConfig{})

	const workers = 16
	var wg sync.WaitGroup
	acquired := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryAcquire(ctx, "fp-1")
			assert.NoError(t, err)
			if ok {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	assert.Len(t, acquired, 1, "exactly one worker may hold the lock")
}
