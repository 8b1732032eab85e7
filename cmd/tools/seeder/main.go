package main

import (
	"context"
	"flag"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/config"
	"github.com/noah-isme/agency-api/internal/obs"
)

// seeder applies the billing schema and the demo catalog, and can issue an
// invoice to one client:
//
//	go run ./cmd/tools/seeder -user u_42 -number INV-2025-010 -amount 350 -description "Landing page"
func main() {
	var (
		userID      = flag.String("user", "", "client user id that owns the invoice; empty publishes it to everyone")
		number      = flag.String("number", "", "invoice number; when empty only migrations run")
		amount      = flag.String("amount", "", "invoice amount in dollars, e.g. 149.00")
		description = flag.String("description", "", "invoice description")
		dueIn       = flag.Duration("due-in", 30*24*time.Hour, "time until the invoice is due")
	)
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := billing.Migrate(pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	logger.Info().Msg("billing schema and catalog up to date")

	if *number == "" {
		return
	}
	value, err := decimal.NewFromString(*amount)
	if err != nil {
		logger.Fatal().Err(err).Str("amount", *amount).Msg("parse amount")
	}
	now := time.Now().UTC()
	inv, err := billing.NewPGStore(pool).CreateInvoice(ctx, billing.Invoice{
		UserID:      *userID,
		Number:      *number,
		Description: *description,
		Amount:      value,
		Status:      billing.InvoicePending,
		IssuedAt:    now,
		DueAt:       now.Add(*dueIn),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("issue invoice")
	}
	logger.Info().Int64("invoice_id", inv.ID).Str("number", inv.Number).Str("amount", inv.Amount.StringFixed(2)).Msg("invoice issued")
}
