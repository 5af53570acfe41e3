package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, Policy{Name: "global", Limit: limit, Window: window}), mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Result{Allowed: true, Limit: 2, Remaining: 1, ResetAfter: time.Minute}, res)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:1.2.3.4"))

	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetAfter)

	got, err := mr.Get("ratelimit:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	mr.FastForward(time.Minute + time.Second)

	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestRedisLimiter_WindowIsNotExtendedByLaterHits(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 10, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, res.ResetAfter)
	assert.Equal(t, 20*time.Second, mr.TTL("ratelimit:k"))
}

func TestRedisLimiter_RepairsMissingExpiry(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 10, time.Minute)
	require.NoError(t, mr.Set("ratelimit:k", "4"))

	res, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Remaining)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:k"))
}

func TestRedisLimiter_RedisDown(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 10, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}
