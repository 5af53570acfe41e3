// Package proxy relays requests the edge does not serve itself to the
// storefront API.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	nethttputil "net/http/httputil"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

// Config configures the storefront proxy.
type Config struct {
	TargetURL       string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
	Breaker         BreakerConfig
}

// Proxy is a reverse proxy to a single upstream behind a circuit breaker.
type Proxy struct {
	target    *url.URL
	rp        *nethttputil.ReverseProxy
	transport *breakerTransport
	base      http.RoundTripper
	logger    *slog.Logger
}

// New creates a Proxy for cfg.TargetURL.
func New(cfg Config, l *slog.Logger) (*Proxy, error) {
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url %q is not absolute", cfg.TargetURL)
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	p := &Proxy{
		target:    target,
		transport: newBreakerTransport("storefront", base, cfg.Breaker, l),
		base:      base,
		logger:    l,
	}

	p.rp = &nethttputil.ReverseProxy{
		Rewrite: func(pr *nethttputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
			pr.SetXForwarded()
		},
		Transport:    p.transport,
		ErrorHandler: p.errorHandler,
	}

	l.Info("registered storefront proxy", slog.String("target", target.String()))
	return p, nil
}

// ServeHTTP relays r to the upstream.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// State returns the circuit breaker state.
func (p *Proxy) State() gobreaker.State {
	return p.transport.state()
}

// Ping checks that the upstream answers. It bypasses the breaker so health
// probes neither trip nor reset it.
func (p *Proxy) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create upstream ping: %w", err)
	}
	resp, err := p.base.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = p.logger
	}

	if errors.Is(err, ErrCircuitOpen) {
		l.WarnContext(r.Context(), "storefront circuit open",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		httputil.WriteErrorCode(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "storefront temporarily unavailable")
		return
	}

	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is left to read a response.
		return
	}

	l.ErrorContext(r.Context(), "proxy error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	httputil.WriteErrorCode(w, r, http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
}
