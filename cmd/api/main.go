package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/app"
	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/config"
	"github.com/noah-isme/agency-api/internal/health"
	"github.com/noah-isme/agency-api/internal/obs"
	"github.com/noah-isme/agency-api/internal/resilience"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs.MustRegisterDomainMetrics(registry)
	resilience.MustRegisterMetrics(registry)

	tracing := cfg.Obs.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "agency-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("flush traces")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool := openDatabase(startCtx, cfg, logger)
	rdb := openRedis(startCtx, cfg, logger)
	cancel()
	if pool != nil {
		defer pool.Close()
	}
	if rdb != nil {
		defer rdb.Close()
	}

	catalog := app.NewCatalog(pool)
	providers := app.NewProviders(cfg, logger)
	for name, p := range providers {
		if !p.Initialized() {
			logger.Warn().Str("provider", string(name)).Msg("provider credentials missing; its checkout routes will answer not configured")
		}
	}

	receipts, taskClient, err := app.NewReceiptPublisher(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("receipt queue")
	}
	if taskClient != nil {
		defer taskClient.Close()
	}

	deps := app.Dependencies{
		Config:   cfg,
		Logger:   logger,
		DB:       pool,
		Redis:    rdb,
		Catalog:  catalog,
		Payments: app.NewPaymentService(cfg, providers, catalog, rdb, receipts, logger),
		Auth:     app.NewAuth(cfg),
		Limiter:  app.NewLimiter(rdb),
		Tracing:  tracing,
	}
	if cfg.Obs.MetricsEnabled {
		deps.HTTPMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMs), registry)
		deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	if cfg.Obs.PprofEnabled {
		deps.Pprof = obs.PprofHandler(cfg.Obs.PprofUser, cfg.Obs.PprofPassword)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           app.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(srv, cfg, logger)
}

// serve runs srv until SIGINT/SIGTERM, then fails readiness, waits out the
// drain period so load balancers notice, and shuts down gracefully.
func serve(srv *http.Server, cfg *config.Config, logger zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		failed <- srv.ListenAndServe()
	}()

	select {
	case err := <-failed:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("drain", cfg.ShutdownDrain).Msg("draining")
	time.Sleep(cfg.ShutdownDrain)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("stopped")
}

// openDatabase returns nil without DATABASE_URL; the catalog is then served
// from memory.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set; serving the built-in catalog from memory")
		return nil
	}
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse DATABASE_URL")
	}
	pc.ConnConfig.Tracer = obs.PGXTracer{}
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "agency-api"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("database unreachable")
	}
	if cfg.DBMigrateOnStart {
		if err := billing.Migrate(pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}
	return pool
}

// openRedis returns nil without REDIS_URL. Idempotency replay checks, the
// shared ledger and receipts are then unavailable.
func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; idempotency replay checks off, ledger kept in memory, receipts dropped")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis unreachable")
	}
	return rdb
}
