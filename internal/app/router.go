package app

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/checkout"
	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/config"
	"github.com/noah-isme/agency-api/internal/health"
	"github.com/noah-isme/agency-api/internal/obs"
	"github.com/noah-isme/agency-api/internal/payment"
	"github.com/noah-isme/agency-api/internal/ratelimit"
	"github.com/noah-isme/agency-api/internal/security"
)

const stripeWebhookPath = "/api/webhooks/stripe"

// NewRouter assembles the middleware stack and every HTTP route.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if deps.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: deps.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: deps.Logger}.Middleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(cfg.CORSAllowedOrigins)))
	}
	r.Use(security.Headers{
		Enable:          cfg.SecurityHeadersEnabled,
		EnableHSTS:      cfg.IsProduction(),
		NoStorePrefixes: []string{"/api/"},
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.Pprof != nil {
		r.Mount("/debug/pprof", deps.Pprof)
	}

	healthHandler := health.Handler{Probes: []health.Probe{
		health.PostgresProbe(deps.DB),
		health.RedisProbe(deps.Redis),
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	csrf := security.CSRF{Secure: cfg.CookieSecure, SkipPrefixes: []string{stripeWebhookPath}}
	requireAuth := deps.Auth.RequireAuth

	if cfg.Stripe.WebhookSecret != "" {
		r.Method(http.MethodPost, stripeWebhookPath, payment.StripeWebhook{
			Secret:  cfg.Stripe.WebhookSecret,
			Service: deps.Payments,
			Logger:  deps.Logger,
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Auth.Authenticate)
		if cfg.CSRFEnabled {
			api.Use(csrf.Middleware)
			api.Get("/csrf", csrf.TokenHandler)
		}

		billingHandler := billing.Handler{Repo: deps.Catalog}
		api.Get("/services", billingHandler.Services)
		api.With(requireAuth).Get("/user/invoices", billingHandler.UserInvoices)
		api.With(requireAuth).Get("/payments/{provider}/{id}", payment.Handler{Svc: deps.Payments}.Status)

		checkoutHandler := &checkout.Handler{
			Payments: deps.Payments,
			Catalog:  deps.Catalog,
			Keys: checkout.PublicKeys{
				StripePublishableKey: cfg.Stripe.PublishableKey,
				PayPalClientID:       paypalClientID(cfg),
			},
		}
		api.Group(func(pay chi.Router) {
			pay.Use(ratelimit.Handler{
				Limiter: deps.Limiter,
				Config:  ratelimit.Config{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
				OnError: func(err error) { deps.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
			}.Middleware)
			pay.Use(common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}.Middleware)
			checkoutHandler.Mount(pay, requireAuth)
		})
	})

	return r
}

// corsOptions allows credentials only for explicitly listed origins; a "*"
// entry opens the API to anonymous cross-origin reads without cookies.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}
}

// The browser SDK takes the same client id as the REST API unless a
// separate public id is configured.
func paypalClientID(cfg *config.Config) string {
	if cfg.PayPal.PublicClientID != "" {
		return cfg.PayPal.PublicClientID
	}
	return cfg.PayPal.ClientID
}
