package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const devSessionSecret = "dev-session-secret-change-me"

// Config is the process configuration. Only the provider credentials and,
// in production, SESSION_SECRET are required; everything else has a default.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	SessionSecret     string
	SessionCookieName string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string

	Stripe StripeConfig
	PayPal PayPalConfig

	ProviderTimeout     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	IdempotencyTTL  time.Duration
	LedgerTTL       time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	BodyLimitBytes  int64

	CSRFEnabled            bool
	SecurityHeadersEnabled bool

	DBMigrateOnStart  bool
	ShutdownDrain     time.Duration
	ShutdownTimeout   time.Duration
	WorkerConcurrency int
	WorkerMetricsAddr string

	Obs ObsConfig
}

// ObsConfig switches the observability surfaces. Pprof is on outside
// production unless OBS_ENABLE_PPROF says otherwise.
type ObsConfig struct {
	LogFormat            string
	LogLevel             string
	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsBucketsMs     string
	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64
	PprofEnabled         bool
	PprofUser            string
	PprofPassword        string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

// PayPalConfig holds REST credentials. PublicClientID is what the browser SDK
// loads with; it falls back to ClientID when unset.
type PayPalConfig struct {
	ClientID       string
	ClientSecret   string
	PublicClientID string
}

// environment mirrors the variable names one to one. Fields hold their
// defaults before unmarshalling; variables that are set override them.
type environment struct {
	AppEnv      string `koanf:"APP_ENV"`
	NodeEnv     string `koanf:"NODE_ENV"`
	Port        string `koanf:"PORT"`
	DatabaseURL string `koanf:"DATABASE_URL"`
	RedisURL    string `koanf:"REDIS_URL"`
	CORSOrigins string `koanf:"CORS_ALLOWED_ORIGINS"`

	SessionSecret     string `koanf:"SESSION_SECRET"`
	SessionCookieName string `koanf:"SESSION_COOKIE_NAME"`
	CookieDomain      string `koanf:"COOKIE_DOMAIN"`
	CookieSecure      string `koanf:"COOKIE_SECURE"`
	CookieSameSite    string `koanf:"COOKIE_SAMESITE"`
	JWTSecret         string `koanf:"JWT_SECRET"`
	JWTIssuer         string `koanf:"JWT_ISSUER"`
	JWTAudience       string `koanf:"JWT_AUDIENCE"`

	StripeSecretKey      string `koanf:"STRIPE_SECRET_KEY"`
	StripePublishableKey string `koanf:"VITE_STRIPE_PUBLIC_KEY"`
	StripeWebhookSecret  string `koanf:"STRIPE_WEBHOOK_SECRET"`
	PayPalClientID       string `koanf:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret   string `koanf:"PAYPAL_CLIENT_SECRET"`
	PayPalPublicClientID string `koanf:"VITE_PAYPAL_CLIENT_ID"`

	ProviderTimeout     time.Duration `koanf:"PROVIDER_TIMEOUT"`
	BreakerMinRequests  int           `koanf:"BREAKER_MIN_REQUESTS"`
	BreakerFailureRatio float64       `koanf:"BREAKER_FAILURE_RATIO"`
	BreakerOpenFor      time.Duration `koanf:"BREAKER_OPEN_FOR"`

	IdempotencyTTL  time.Duration `koanf:"IDEMPOTENCY_TTL"`
	LedgerTTL       time.Duration `koanf:"LEDGER_TTL"`
	RateLimitWindow time.Duration `koanf:"RATE_LIMIT_WINDOW"`
	RateLimitMax    int           `koanf:"RATE_LIMIT_MAX"`
	BodyLimitBytes  int64         `koanf:"BODY_LIMIT_BYTES"`

	CSRFEnabled            string `koanf:"CSRF_ENABLED"`
	SecurityHeadersEnabled string `koanf:"SECURITY_HEADERS_ENABLED"`

	DBMigrateOnStart  string `koanf:"DB_MIGRATE_ON_START"`
	ShutdownDrainMs   int    `koanf:"SHUTDOWN_DRAIN_MS"`
	ShutdownTimeoutMs int    `koanf:"SHUTDOWN_TIMEOUT_MS"`
	WorkerConcurrency int    `koanf:"WORKER_CONCURRENCY"`
	WorkerMetricsAddr string `koanf:"WORKER_METRICS_ADDR"`

	LogFormat        string  `koanf:"OBS_LOG_FORMAT"`
	LogLevel         string  `koanf:"OBS_LOG_LEVEL"`
	Prometheus       string  `koanf:"OBS_ENABLE_PROMETHEUS"`
	MetricsNamespace string  `koanf:"OBS_METRICS_NAMESPACE"`
	MetricsBuckets   string  `koanf:"OBS_METRICS_BUCKETS_MS"`
	Tracing          string  `koanf:"OBS_ENABLE_TRACING"`
	TracingExporter  string  `koanf:"OBS_TRACING_EXPORTER"`
	OTLPEndpoint     string  `koanf:"OBS_OTLP_ENDPOINT"`
	SamplingRatio    float64 `koanf:"OBS_TRACING_SAMPLING_RATIO"`
	Pprof            string  `koanf:"OBS_ENABLE_PPROF"`
	PprofUser        string  `koanf:"SECURE_PPROF_BASIC_AUTH_USER"`
	PprofPassword    string  `koanf:"SECURE_PPROF_BASIC_AUTH_PASS"`
}

func defaults() environment {
	return environment{
		NodeEnv:             "development",
		Port:                "8080",
		SessionCookieName:   "connect.sid",
		ProviderTimeout:     15 * time.Second,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenFor:      30 * time.Second,
		IdempotencyTTL:      24 * time.Hour,
		LedgerTTL:           7 * 24 * time.Hour,
		RateLimitWindow:     time.Minute,
		RateLimitMax:        30,
		BodyLimitBytes:      1 << 20,
		ShutdownDrainMs:     2000,
		ShutdownTimeoutMs:   15000,
		WorkerConcurrency:   5,
		LogFormat:           "json",
		LogLevel:            "info",
		MetricsNamespace:    "agency",
		TracingExporter:     "otlp",
		SamplingRatio:       1,
	}
}

// Load reads the environment, after merging an optional .env file. Blank
// variables count as unset. A malformed number or duration is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	e := defaults()
	if err := k.Unmarshal("", &e); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := e.config()
	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: SESSION_SECRET is required in production")
		}
		cfg.SessionSecret = devSessionSecret
	}
	return cfg, nil
}

func (e environment) validate() error {
	var errs []error
	positive := map[string]int64{
		"BREAKER_MIN_REQUESTS": int64(e.BreakerMinRequests),
		"RATE_LIMIT_MAX":       int64(e.RateLimitMax),
		"BODY_LIMIT_BYTES":     e.BodyLimitBytes,
		"PROVIDER_TIMEOUT":     int64(e.ProviderTimeout),
		"BREAKER_OPEN_FOR":     int64(e.BreakerOpenFor),
		"IDEMPOTENCY_TTL":      int64(e.IdempotencyTTL),
		"LEDGER_TTL":           int64(e.LedgerTTL),
		"RATE_LIMIT_WINDOW":    int64(e.RateLimitWindow),
		"SHUTDOWN_TIMEOUT_MS":  int64(e.ShutdownTimeoutMs),
		"WORKER_CONCURRENCY":   int64(e.WorkerConcurrency),
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if e.BreakerFailureRatio <= 0 || e.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_RATIO must be in (0, 1]"))
	}
	if e.SamplingRatio < 0 || e.SamplingRatio > 1 {
		errs = append(errs, errors.New("OBS_TRACING_SAMPLING_RATIO must be in [0, 1]"))
	}
	if e.ShutdownDrainMs < 0 {
		errs = append(errs, errors.New("SHUTDOWN_DRAIN_MS must not be negative"))
	}
	return errors.Join(errs...)
}

func (e environment) config() *Config {
	appEnv := e.AppEnv
	if appEnv == "" {
		appEnv = e.NodeEnv
	}
	appEnv = strings.ToLower(appEnv)
	return &Config{
		AppEnv:             appEnv,
		Port:               e.Port,
		DatabaseURL:        e.DatabaseURL,
		RedisURL:           e.RedisURL,
		CORSAllowedOrigins: splitList(e.CORSOrigins),

		SessionSecret:     e.SessionSecret,
		SessionCookieName: e.SessionCookieName,
		CookieDomain:      e.CookieDomain,
		CookieSecure:      flag(e.CookieSecure, false),
		CookieSameSite:    sameSite(e.CookieSameSite),
		JWTSecret:         e.JWTSecret,
		JWTIssuer:         e.JWTIssuer,
		JWTAudience:       e.JWTAudience,

		Stripe: StripeConfig{
			SecretKey:      e.StripeSecretKey,
			PublishableKey: e.StripePublishableKey,
			WebhookSecret:  e.StripeWebhookSecret,
		},
		PayPal: PayPalConfig{
			ClientID:       e.PayPalClientID,
			ClientSecret:   e.PayPalClientSecret,
			PublicClientID: e.PayPalPublicClientID,
		},

		ProviderTimeout:     e.ProviderTimeout,
		BreakerMinRequests:  e.BreakerMinRequests,
		BreakerFailureRatio: e.BreakerFailureRatio,
		BreakerOpenFor:      e.BreakerOpenFor,

		IdempotencyTTL:  e.IdempotencyTTL,
		LedgerTTL:       e.LedgerTTL,
		RateLimitWindow: e.RateLimitWindow,
		RateLimitMax:    e.RateLimitMax,
		BodyLimitBytes:  e.BodyLimitBytes,

		CSRFEnabled:            flag(e.CSRFEnabled, false),
		SecurityHeadersEnabled: flag(e.SecurityHeadersEnabled, true),

		DBMigrateOnStart:  flag(e.DBMigrateOnStart, true),
		ShutdownDrain:     time.Duration(e.ShutdownDrainMs) * time.Millisecond,
		ShutdownTimeout:   time.Duration(e.ShutdownTimeoutMs) * time.Millisecond,
		WorkerConcurrency: e.WorkerConcurrency,
		WorkerMetricsAddr: e.WorkerMetricsAddr,

		Obs: ObsConfig{
			LogFormat:            e.LogFormat,
			LogLevel:             e.LogLevel,
			MetricsEnabled:       flag(e.Prometheus, true),
			MetricsNamespace:     e.MetricsNamespace,
			MetricsBucketsMs:     e.MetricsBuckets,
			TracingEnabled:       flag(e.Tracing, true),
			TracingExporter:      e.TracingExporter,
			OTLPEndpoint:         e.OTLPEndpoint,
			TracingSamplingRatio: e.SamplingRatio,
			PprofEnabled:         flag(e.Pprof, appEnv != "production"),
			PprofUser:            e.PprofUser,
			PprofPassword:        e.PprofPassword,
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HTTPAddr accepts PORT as either "8080" or ":8080".
func (c *Config) HTTPAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func flag(value string, fallback bool) bool {
	switch strings.ToLower(value) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return fallback
}

func sameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests runs Load with env applied on top of the real environment and
// restores the previous values afterwards. An empty value unsets the key.
func LoadForTests(env map[string]string) (*Config, error) {
	previous := make(map[string]*string, len(env))
	for key, value := range env {
		if old, ok := os.LookupEnv(key); ok {
			previous[key] = &old
		} else {
			previous[key] = nil
		}
		if err := setenv(key, value); err != nil {
			return nil, err
		}
	}
	defer func() {
		for key, old := range previous {
			if old == nil {
				_ = os.Unsetenv(key)
			} else {
				_ = os.Setenv(key, *old)
			}
		}
	}()
	return Load()
}

func setenv(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}
