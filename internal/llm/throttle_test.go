package llm

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, perMinute int) (*redisThrottle, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	throttle := newRedisThrottle(rdb, "test-bucket", perMinute, nil)

	return throttle, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisThrottle_NilReceiver_Noop(t *testing.T) {
	var throttle *redisThrottle
	assert.NoError(t, throttle.wait(context.Background(), 1))
}

func TestNewRedisThrottle_NonPositivePerMinuteDisables(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	assert.Nil(t, newRedisThrottle(rdb, "k", 0, nil))
	assert.Nil(t, newRedisThrottle(nil, "k", 60, nil))
}

func TestRedisThrottle_AllowsUpToCapacityThenDenies(t *testing.T) {
	throttle, cleanup := newTestThrottle(t, 60) // capacity 60, refill 1/sec
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		allowed, retryAfter, err := throttle.allow(ctx, 1)
		require.NoError(t, err)
		require.Truef(t, allowed, "call %d should be allowed", i)
		assert.Zero(t, retryAfter)
	}

	allowed, retryAfter, err := throttle.allow(ctx, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
}

func TestRedisThrottle_Wait_BlocksUntilTokenAvailable(t *testing.T) {
	throttle, cleanup := newTestThrottle(t, 60)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, throttle.wait(ctx, 1))
	}

	throttle.refillRate = 1000 // speed up the test's forced wait

	done := make(chan error, 1)
	go func() { done <- throttle.wait(ctx, 1) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not unblock once tokens refilled")
	}
}

func TestRedisThrottle_Wait_RespectsContextCancellation(t *testing.T) {
	throttle, cleanup := newTestThrottle(t, 1) // capacity 1, refill slow
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, throttle.wait(ctx, 1))

	cancel()
	err := throttle.wait(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
