package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter. Every hit runs INCR, PEXPIRE NX
// and PTTL in one MULTI/EXEC, so the first hit of a window creates the key
// with its expiry and later hits only increment it.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter whose keys are "ratelimit:<key>". Callers
// namespace keys per policy.
func NewRedisLimiter(client *redis.Client, p Policy) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  p.Limit,
		window: p.Window,
	}
}

// Allow increments the counter for key and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// NX only starts the window; it also restores an expiry lost to an
		// earlier failure. Requires Redis 7.
		pipe.Do(ctx, "pexpire", k, l.window.Milliseconds(), "nx")
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", k, err)
	}

	count := incr.Val()
	reset := pttl.Val()
	if reset < 0 {
		reset = l.window
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:    count <= int64(l.limit),
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: reset,
	}, nil
}
