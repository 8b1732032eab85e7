package app

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/auth"
	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/config"
	"github.com/noah-isme/agency-api/internal/lock"
	"github.com/noah-isme/agency-api/internal/obs"
	"github.com/noah-isme/agency-api/internal/payment"
	"github.com/noah-isme/agency-api/internal/ratelimit"
	"github.com/noah-isme/agency-api/internal/receipt"
	"github.com/noah-isme/agency-api/internal/resilience"
)

// Dependencies enumerates the collaborators the HTTP surface is built from.
// DB and Redis are optional; nil values select the in-process fallbacks.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Catalog  billing.Repository
	Payments *payment.Service
	Auth     auth.Middleware
	Limiter  ratelimit.Allower

	HTTPMetrics *obs.HTTPMetrics
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Pprof is mounted under /debug/pprof when set.
	Pprof   http.Handler
	Tracing bool
}

// NewCatalog returns the Postgres-backed catalog when a pool is available,
// otherwise the seeded in-memory store.
func NewCatalog(pool *pgxpool.Pool) interface {
	billing.Repository
	billing.Settler
} {
	if pool == nil {
		return billing.NewMemStore()
	}
	return billing.NewPGStore(pool)
}

// NewLimiter picks the shared Redis limiter, or a per-process ulule store.
func NewLimiter(rdb *redis.Client) ratelimit.Allower {
	if rdb == nil {
		return ratelimit.NewMemoryLimiter("agency:rl")
	}
	return ratelimit.RedisLimiter{Client: rdb, Prefix: "agency:rl"}
}

// NewAuth builds the session and bearer token resolvers from cfg.
func NewAuth(cfg *config.Config) auth.Middleware {
	return auth.Middleware{
		Sessions: auth.NewCookieSessions([]byte(cfg.SessionSecret), cfg.SessionCookieName, auth.CookieOptions{
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
		}),
		Tokens: auth.NewTokens(auth.TokenConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}),
	}
}

// NewProviders builds both adapters, each behind its own breaker-guarded client.
func NewProviders(cfg *config.Config, logger zerolog.Logger) payment.Registry {
	client := func(target string) *http.Client {
		return resilience.NewHTTPClient(resilience.ClientOptions{
			Target:       target,
			Timeout:      cfg.ProviderTimeout,
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenFor:      cfg.BreakerOpenFor,
			Logger:       logger,
		})
	}
	return payment.Registry{
		payment.Stripe: payment.NewStripe(payment.StripeConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			HTTPClient: client(string(payment.Stripe)),
			Logger:     logger,
		}),
		payment.PayPal: payment.NewPayPal(payment.PayPalConfig{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			Production:   cfg.IsProduction(),
			HTTPClient:   client(string(payment.PayPal)),
		}),
	}
}

// NewPaymentService wires the ledger and settlement lock to Redis when it is
// available and falls back to process-local state otherwise.
func NewPaymentService(cfg *config.Config, providers payment.Registry, settler billing.Settler, rdb *redis.Client, receipts receipt.Publisher, logger zerolog.Logger) *payment.Service {
	svc := &payment.Service{
		Providers: providers,
		Ledger:    payment.NewMemLedger(),
		Receipts:  receipts,
		Settler:   settler,
		Logger:    logger,
	}
	if svc.Receipts == nil {
		svc.Receipts = receipt.NopPublisher{}
	}
	if rdb != nil {
		svc.Ledger = payment.RedisLedger{R: rdb, TTL: cfg.LedgerTTL}
		svc.Locker = lock.Locker{R: rdb, Prefix: "agency:lock"}
	}
	return svc
}

// NewReceiptPublisher returns an asynq-backed publisher and its client, or a
// no-op publisher when Redis is not configured. Callers close the client.
func NewReceiptPublisher(redisURL string) (receipt.Publisher, *asynq.Client, error) {
	if redisURL == "" {
		return receipt.NopPublisher{}, nil, nil
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, nil, err
	}
	client := asynq.NewClient(opt)
	return receipt.AsynqPublisher{Client: client}, client, nil
}
