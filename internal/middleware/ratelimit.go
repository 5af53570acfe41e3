package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/ratelimit"
	apperrors "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/errors"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// KeyFunc derives the limiter key of a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by client address.
func ByClientIP(ips *ClientIPResolver) KeyFunc {
	return ips.ClientIP
}

// ByPrefixedClientIP keys requests by client address under prefix, so several
// policies can share one limiter backend.
func ByPrefixedClientIP(ips *ClientIPResolver, prefix string) KeyFunc {
	return func(r *http.Request) string { return prefix + ":" + ips.ClientIP(r) }
}

// RateLimit enforces limiter on every request. Limiter errors are logged and
// the request is let through.
func RateLimit(limiter ratelimit.Limiter, policy string, key KeyFunc, fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)

			res, err := limiter.Allow(r.Context(), k)
			if err != nil {
				ratelimit.Observe(policy, ratelimit.OutcomeError)
				loggerFor(r, fallback).WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("policy", policy),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			h.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(res.ResetAfter)))

			if !res.Allowed {
				ratelimit.Observe(policy, ratelimit.OutcomeRejected)
				retry := ceilSeconds(res.ResetAfter)
				if retry < 1 {
					retry = 1
				}
				h.Set(HeaderRetryAfter, strconv.Itoa(retry))

				loggerFor(r, fallback).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("policy", policy),
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.RateLimited("too many requests, please try again later"), fallback)
				return
			}

			ratelimit.Observe(policy, ratelimit.OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// ClientIPResolver derives the client address of a request. Forwarding
// headers are honoured only when the socket peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

// NewClientIPResolver parses the trusted proxy CIDRs.
func NewClientIPResolver(trustedCIDRs []string) (*ClientIPResolver, error) {
	ips := &ClientIPResolver{}
	for _, cidr := range trustedCIDRs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", cidr, err)
		}
		ips.trusted = append(ips.trusted, ipNet)
	}
	return ips, nil
}

func (c *ClientIPResolver) trusts(ip net.IP) bool {
	if c == nil || ip == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer unless it is a trusted proxy. Behind
// trusted proxies it walks X-Forwarded-For from the right and returns the
// first hop that is not itself trusted. X-Real-IP is read only when a trusted
// proxy sent no X-Forwarded-For. A nil resolver trusts nobody.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !c.trusts(net.ParseIP(host)) {
		return host
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
		return host
	}

	hops := strings.Split(strings.Join(xff, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			// A hop no trusted proxy would write; stop at the last known peer.
			return host
		}
		if !c.trusts(ip) || i == 0 {
			return ip.String()
		}
		host = ip.String()
	}
	return host
}

func loggerFor(r *http.Request, fallback *slog.Logger) *slog.Logger {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		return fallback
	}
	return l
}
