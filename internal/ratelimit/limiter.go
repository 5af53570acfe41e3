// Package ratelimit counts requests per key against a fixed quota.
//
// Two implementations share the Limiter interface: RedisLimiter keeps a
// fixed-window counter in Redis so every edge replica shares the quota, and
// MemoryLimiter keeps a per-key token bucket in process for single-instance
// deployments and as the fallback when Redis is unreachable at startup.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result describes the quota state after a call to Allow.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is the time until the quota is restored. When the request
	// was rejected it is also the earliest useful retry delay.
	ResetAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Policy is a named quota.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Outcome labels for ratelimit_requests_total.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// RequestsTotal counts limiter decisions.
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_requests_total",
		Help: "Rate limiter decisions by policy and outcome",
	},
	[]string{"policy", "outcome"},
)

// Observe records a limiter decision.
func Observe(policy, outcome string) {
	RequestsTotal.WithLabelValues(policy, outcome).Inc()
}
