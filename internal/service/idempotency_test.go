package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdempotencyGuardReplays(t *testing.T) {
	guard := NewIdempotencyGuard(cache.NewMemory(), time.Hour, zap.NewNop())
	ctx := context.Background()
	var calls int32
	fn := func() (int, any, error) {
		atomic.AddInt32(&calls, 1)
		return 201, map[string]string{"id": "WO001"}, nil
	}

	status, body, replayed, err := guard.Do(ctx, "POST /api/v1/work-orders key-1", fn)
	require.NoError(t, err)
	assert.Equal(t, 201, status)
	assert.False(t, replayed)
	assert.JSONEq(t, `{"id":"WO001"}`, string(body))

	status, body, replayed, err = guard.Do(ctx, "POST /api/v1/work-orders key-1", fn)
	require.NoError(t, err)
	assert.Equal(t, 201, status)
	assert.True(t, replayed)
	assert.JSONEq(t, `{"id":"WO001"}`, string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, _, replayed, err = guard.Do(ctx, "", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyGuardDoesNotStoreFailures(t *testing.T) {
	guard := NewIdempotencyGuard(cache.NewMemory(), time.Hour, zap.NewNop())
	ctx := context.Background()

	_, _, _, err := guard.Do(ctx, "k", func() (int, any, error) {
		return 0, nil, ErrInsufficientStock
	})
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	status, _, replayed, err := guard.Do(ctx, "k", func() (int, any, error) {
		return 200, "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.False(t, replayed)
}

func TestIdempotencyGuardConcurrentCallsRunOnce(t *testing.T) {
	guard := NewIdempotencyGuard(cache.NewMemory(), time.Hour, zap.NewNop())
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := guard.Do(ctx, "same", func() (int, any, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 200, "done", nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
