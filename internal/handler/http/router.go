package http

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/config"
	edgemw "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/middleware"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/ratelimit"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/service"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/health"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
	pkgmiddleware "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/middleware"
)

const serviceName = "api-edge"

// Rate-limit policy names, used as metric labels.
const (
	PolicyGlobal = "global"
	PolicyAuth   = "auth"
)

// Deps groups the collaborators the router wires together. A nil ClientIPs
// keys rate limits on the socket peer.
type Deps struct {
	Auth          *service.AuthService
	Gate          *edgemw.Auth
	GlobalLimiter ratelimit.Limiter
	AuthLimiter   ratelimit.Limiter
	ClientIPs     *edgemw.ClientIPResolver
	Upstream      http.Handler
	Health        *health.Handler
	Logger        *slog.Logger
}

// NewRouter creates the edge router: identity routes are served locally,
// every other /api path is relayed to the storefront after the rate limiter
// and the auth gate have run.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(pkgmiddleware.CORS(pkgmiddleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: cfg.CORSAllowCredentials,
		Environment:      cfg.Environment,
	}))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.Tracing(serviceName))
	r.Use(pkgmiddleware.RequestLogger(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(serviceName))
	r.Use(edgemw.RateLimit(deps.GlobalLimiter, PolicyGlobal, edgemw.ByClientIP(deps.ClientIPs), logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())

	metricsHandler := metricsIPAllowlist(cfg.MetricsAllowedCIDRs, logger)(promhttp.Handler())
	r.Get("/metrics", metricsHandler.ServeHTTP)

	authHandler := NewAuthHandler(deps.Auth, logger)
	authLimit := edgemw.RateLimit(deps.AuthLimiter, PolicyAuth, edgemw.ByPrefixedClientIP(deps.ClientIPs, PolicyAuth), logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.Gate.Authenticate)
		r.Use(edgemw.RequireAdmin)
		// Matched on the folded path so variants relayed to the storefront
		// share the quota.
		r.Use(applyWhen(edgemw.IsCredentialRoute, authLimit))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/admin/login", authHandler.AdminLogin)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.Get("/profile", authHandler.GetProfile)
			r.Put("/password", authHandler.ChangePassword)
			r.Post("/admin", authHandler.CreateAdmin)
			r.Get("/admin/profile", authHandler.GetAdminProfile)

			// The remaining user routes belong to the storefront.
			r.NotFound(deps.Upstream.ServeHTTP)
			r.MethodNotAllowed(deps.Upstream.ServeHTTP)
		})

		r.Handle("/*", deps.Upstream)
	})

	return r
}

// applyWhen runs mw only for requests match accepts.
func applyWhen(match func(method, urlPath string) bool, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match(r.Method, r.URL.Path) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// metricsIPAllowlist restricts access to requests whose socket address lies
// in one of cidrs. Forwarding headers are ignored.
func metricsIPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid metrics CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if ip := net.ParseIP(host); ip != nil {
				for _, n := range nets {
					if n.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("metrics access denied", slog.String("ip", host))
			httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "metrics endpoint is restricted")
		})
	}
}
