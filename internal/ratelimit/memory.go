package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key. A bucket refills at
// Limit/Window tokens per second up to burst tokens.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	burst   int
	every   rate.Limit
	idleTTL time.Duration
	nowFunc func() time.Time
}

// NewMemoryLimiter creates an in-process limiter. A non-positive burst
// defaults to the policy limit.
func NewMemoryLimiter(p Policy, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = p.Limit
	}
	every := rate.Limit(float64(p.Limit) / p.Window.Seconds())

	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		limit:   p.Limit,
		burst:   burst,
		every:   every,
		// An idle bucket is full again after this long, so dropping it
		// loses no state.
		idleTTL: time.Duration(float64(burst) / float64(every) * float64(time.Second)),
		nowFunc: time.Now,
	}
}

// Allow takes one token from the bucket for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.nowFunc()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	l.mu.Unlock()

	res := Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if allowed {
		res.ResetAfter = l.durationFor(float64(l.burst) - tokens)
	} else {
		res.ResetAfter = l.durationFor(1 - tokens)
	}
	return res, nil
}

func (l *MemoryLimiter) durationFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(l.every) * float64(time.Second))
}

// StartEviction drops idle buckets every interval until ctx is done.
func (l *MemoryLimiter) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
}

func (l *MemoryLimiter) evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

func (l *MemoryLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
