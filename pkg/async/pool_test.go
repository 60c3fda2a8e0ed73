package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4, "test", time.Second, nil)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPoolDrainsOnShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test", time.Second, nil)

	var count int64
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int64(5), atomic.LoadInt64(&count))
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test", time.Second, nil)
	require.NoError(t, pool.Shutdown(time.Second))

	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test", time.Second, nil)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		panic("boom")
	}))

	// A panicking task must not take the worker down
	done := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive task panic")
	}
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPoolShutdownTimeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test", 10*time.Second, nil)

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	err := pool.Shutdown(50 * time.Millisecond)
	assert.Error(t, err)
}
