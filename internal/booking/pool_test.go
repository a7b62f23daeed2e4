package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(3)
	ctx := context.Background()

	var running, peak int64
	var mu sync.Mutex
	gate := make(chan struct{})

	for i := 0; i < 10; i++ {
		err := pool.Go(ctx, func() {
			cur := atomic.AddInt64(&running, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			<-gate
			atomic.AddInt64(&running, -1)
		})
		if err != nil {
			close(gate)
			t.Fatalf("Go: %v", err)
		}
		// Saturated pool blocks further Go calls, so release one slot
		// before submitting more.
		if i >= 2 {
			gate <- struct{}{}
		}
	}
	close(gate)
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(3))
}

func TestPool_GoHonorsContext(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	require.NoError(t, pool.Go(ctx, func() { <-block }))

	cancel()
	err := pool.Go(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	pool.Wait()
}

func TestPool_WaitAfterAllDone(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()

	var done int64
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Go(ctx, func() { atomic.AddInt64(&done, 1) }))
	}
	pool.Wait()
	assert.Equal(t, int64(4), atomic.LoadInt64(&done))
}
