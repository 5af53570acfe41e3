package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/proxy"
	pkgconfig "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/config"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/database"
	pkgkafka "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/kafka"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the API edge.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"5000"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	RequestTimeout    time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storefront upstream
	StorefrontURL        string        `env:"STOREFRONT_API_URL" envDefault:"http://localhost:5001"`
	ProxyDialTimeout     time.Duration `env:"PROXY_DIAL_TIMEOUT" envDefault:"5s"`
	ProxyResponseTimeout time.Duration `env:"PROXY_RESPONSE_HEADER_TIMEOUT" envDefault:"15s"`
	ProxyIdleConnTimeout time.Duration `env:"PROXY_IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ProxyMaxIdleConns    int           `env:"PROXY_MAX_IDLE_CONNS" envDefault:"100"`
	BreakerMaxRequests   uint32        `env:"BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval      time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`
	BreakerOpenTimeout   time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio  float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests   uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"10"`

	// PostgreSQL
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"elitereplicas"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"elitereplicas_secret"`
	PostgresDB         string        `env:"POSTGRES_DB" envDefault:"elitereplicas"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"elitereplicas"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`

	// Rate limiting
	RateLimitBackend      string        `env:"RATE_LIMIT_BACKEND" envDefault:"redis"`
	RateLimitRequests     int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitBurst        int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	AuthRateLimitRequests int           `env:"AUTH_RATE_LIMIT_REQUESTS" envDefault:"10"`
	AuthRateLimitWindow   time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Peers allowed to set X-Forwarded-For and X-Real-IP
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128" envSeparator:","`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`

	// Observability
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128" envSeparator:","`
	OTELEnabled         bool     `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint        string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure        bool     `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate      float64  `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, fills in variables that are not already set.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load edge config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the edge runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort))
	}

	if u, err := url.Parse(c.StorefrontURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("STOREFRONT_API_URL must be an absolute URL, got %q", c.StorefrontURL))
	}

	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be explicitly set in %q mode", c.Environment))
		} else if len(c.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret)))
		}
	}

	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		errs = append(errs, errors.New("JWT_REFRESH_TOKEN_EXPIRY must be longer than a positive JWT_ACCESS_TOKEN_EXPIRY"))
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}

	switch c.RateLimitBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be redis or memory, got %q", c.RateLimitBackend))
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.AuthRateLimitRequests < 1 || c.AuthRateLimitWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_REQUESTS and AUTH_RATE_LIMIT_WINDOW must be positive"))
	}

	for _, cidr := range c.TrustedProxyCIDRs {
		if cidr = strings.TrimSpace(cidr); cidr == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXY_CIDRS: invalid CIDR %q", cidr))
		}
	}

	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.BreakerFailureRatio))
	}

	return errors.Join(errs...)
}

// Postgres returns the connection settings for the identity database.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the connection settings for the rate-limit and denylist store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// Proxy returns the storefront proxy settings.
func (c *Config) Proxy() proxy.Config {
	return proxy.Config{
		TargetURL:       c.StorefrontURL,
		DialTimeout:     c.ProxyDialTimeout,
		ResponseTimeout: c.ProxyResponseTimeout,
		IdleConnTimeout: c.ProxyIdleConnTimeout,
		MaxIdleConns:    c.ProxyMaxIdleConns,
		Breaker: proxy.BreakerConfig{
			MaxRequests:  c.BreakerMaxRequests,
			Interval:     c.BreakerInterval,
			OpenTimeout:  c.BreakerOpenTimeout,
			FailureRatio: c.BreakerFailureRatio,
			MinRequests:  c.BreakerMinRequests,
		},
	}
}

// Producer returns the Kafka producer settings. Auth events are published
// asynchronously so a slow broker never delays a login.
func (c *Config) Producer() pkgkafka.ProducerConfig {
	return pkgkafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Async:        true,
	}
}
