package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/ratelimit"
)

func newRedisLimiter(t *testing.T) (ratelimit.RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.RedisLimiter{Client: client, Prefix: "rl:"}, mr
}

func TestRedisLimiterSlidingWindow(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "user:1:/api/create-payment-intent", window, 2)
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d", i)
		require.Equal(t, 1-i, remaining)
		require.WithinDuration(t, time.Now().Add(window), reset, time.Second)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "user:1:/api/create-payment-intent", window, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	members, err := mr.ZMembers("rl:user:1:/api/create-payment-intent")
	require.NoError(t, err)
	require.Len(t, members, 2, "rejected attempts are not recorded")

	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, "user:1:/api/create-payment-intent", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "ip:10.0.0.1:/api/test-payment", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = limiter.Allow(ctx, "ip:10.0.0.2:/api/test-payment", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRedisLimiterWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := ratelimit.RedisLimiter{}.Allow(context.Background(), "k", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}
