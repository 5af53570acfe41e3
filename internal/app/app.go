package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/config"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/event"
	handler "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/handler/http"
	edgemw "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/middleware"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/proxy"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/ratelimit"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository/postgres"
	redisrepo "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository/redis"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/service"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/migrations"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/database"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/health"
	pkgkafka "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/kafka"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/tracing"
)

const serviceName = "api-edge"

// evictionInterval is how often idle in-memory rate-limit buckets are swept.
const evictionInterval = time.Minute

// App wires together all dependencies and runs the API edge.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	stopEviction   context.CancelFunc
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// PostgreSQL is required; Redis, Kafka and the storefront are not, and the
// edge starts in a degraded mode without them.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// PostgreSQL holds every account; the edge cannot serve without it.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	upstream, err := proxy.New(cfg.Proxy(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create storefront proxy: %w", err)
	}

	clientIPs, err := edgemw.NewClientIPResolver(cfg.TrustedProxyCIDRs)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	globalLimiter, authLimiter, denylist := a.initRedis(ctx)

	var events service.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(cfg.Producer(), logger)
		events = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured, auth events are disabled")
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	authService := service.NewAuthService(
		postgres.NewUserRepository(pool),
		postgres.NewAdminRepository(pool),
		postgres.NewRefreshTokenRepository(pool),
		denylist,
		jwtManager,
		events,
		cfg.BcryptCost,
		logger,
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.redis != nil {
		client := a.redis
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		producer := a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}
	healthHandler.RegisterNonCritical("storefront", upstream.Ping)

	router := handler.NewRouter(cfg, handler.Deps{
		Auth:          authService,
		Gate:          edgemw.NewAuth(jwtManager, denylist, logger),
		GlobalLimiter: globalLimiter,
		AuthLimiter:   authLimiter,
		ClientIPs:     clientIPs,
		Upstream:      upstream,
		Health:        healthHandler,
		Logger:        logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// initRedis connects to Redis and builds the limiters and the token
// denylist. Without Redis the limiters fall back to in-process token buckets
// and access tokens cannot be revoked before they expire.
func (a *App) initRedis(ctx context.Context) (global, authLimiter ratelimit.Limiter, denylist repository.TokenDenylist) {
	globalPolicy := ratelimit.Policy{Name: handler.PolicyGlobal, Limit: a.cfg.RateLimitRequests, Window: a.cfg.RateLimitWindow}
	authPolicy := ratelimit.Policy{Name: handler.PolicyAuth, Limit: a.cfg.AuthRateLimitRequests, Window: a.cfg.AuthRateLimitWindow}

	client, err := database.NewRedisClient(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		a.logger.Error("redis unavailable, using in-memory rate limiting and no token denylist",
			slog.String("error", err.Error()),
		)
		global, authLimiter = a.memoryLimiters(globalPolicy, authPolicy)
		return global, authLimiter, nil
	}
	a.redis = client
	a.logger.Info("connected to Redis", slog.String("addr", a.cfg.Redis().Addr()))

	if a.cfg.RateLimitBackend == "memory" {
		global, authLimiter = a.memoryLimiters(globalPolicy, authPolicy)
	} else {
		global = ratelimit.NewRedisLimiter(client, globalPolicy)
		authLimiter = ratelimit.NewRedisLimiter(client, authPolicy)
	}
	return global, authLimiter, redisrepo.NewDenylist(client)
}

func (a *App) memoryLimiters(globalPolicy, authPolicy ratelimit.Policy) (ratelimit.Limiter, ratelimit.Limiter) {
	global := ratelimit.NewMemoryLimiter(globalPolicy, a.cfg.RateLimitBurst)
	authLimiter := ratelimit.NewMemoryLimiter(authPolicy, 0)

	ctx, cancel := context.WithCancel(context.Background())
	a.stopEviction = cancel
	global.StartEviction(ctx, evictionInterval)
	authLimiter.StartEviction(ctx, evictionInterval)
	return global, authLimiter
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storefront", a.cfg.StorefrontURL),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer (flush queued events)
// 4. Redis client and limiter sweepers
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.stopEviction != nil {
		a.stopEviction()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
