package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/obs"
	"github.com/noah-isme/agency-api/internal/receipt"
)

// Locker serializes settlement of one intent across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service creates, captures and records payment intents.
type Service struct {
	Providers Registry
	Ledger    Ledger
	Receipts  receipt.Publisher
	Settler   billing.Settler
	Locker    Locker
	Logger    zerolog.Logger

	mu sync.Mutex
}

// CreateOptions carries per-call overrides.
type CreateOptions struct {
	IdempotencyKey string
	// Metadata entries override the ones derived from the selection.
	Metadata map[string]string
}

// CreateIntent prices sel and opens an intent with the named provider.
func (s *Service) CreateIntent(ctx context.Context, name Name, sel *billing.Selection, userID string, opts CreateOptions) (Intent, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	start := time.Now()
	kind := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", string(name)),
			attribute.String("payment.kind", kind),
			attribute.String("payment.intent.result", result),
		)
		obs.PaymentIntentTotal.WithLabelValues(string(name), kind, result).Inc()
	}()

	req, err := BuildIntentRequest(sel, userID)
	if err != nil {
		return Intent{}, fail(span, err)
	}
	for k, v := range opts.Metadata {
		req.Metadata[k] = v
	}
	req.IdempotencyKey = opts.IdempotencyKey
	kind = req.Metadata[MetaPaymentType]

	p, err := s.ready(name)
	if err != nil {
		return Intent{}, fail(span, err)
	}

	intent, err := timed(name, "create", func() (Intent, error) { return p.CreateIntent(ctx, req) })
	if err != nil {
		return Intent{}, fail(span, err)
	}
	result = "success"
	span.SetAttributes(
		attribute.String("payment.intent.id", intent.ID),
		attribute.Int64("payment.amount_minor", req.AmountMinorUnits),
		attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
	)

	if s.Ledger != nil {
		rec := Record{
			Provider:         name,
			IntentID:         intent.ID,
			UserID:           strings.TrimSpace(userID),
			AmountMinorUnits: req.AmountMinorUnits,
			Currency:         req.Currency,
			Description:      req.Description,
			Metadata:         req.Metadata,
			Status:           intent.Status,
		}
		if err := s.Ledger.Put(ctx, rec); err != nil {
			// The provider intent exists; losing the record only degrades status lookups.
			s.log(ctx).Warn().Err(err).Str("intent_id", intent.ID).Msg("ledger write failed")
		}
	}
	s.log(ctx).Info().
		Str("provider", string(name)).
		Str("intent_id", intent.ID).
		Str("payment_type", kind).
		Int64("amount_minor", req.AmountMinorUnits).
		Msg("payment intent created")
	return intent, nil
}

// Capture completes an approved intent and settles it on success.
func (s *Service) Capture(ctx context.Context, name Name, id, userID string) (Intent, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", string(name)), attribute.String("payment.intent.id", id))

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.capture.result", result))
		obs.PaymentCaptureTotal.WithLabelValues(string(name), result).Inc()
	}()

	if strings.TrimSpace(id) == "" {
		return Intent{}, fail(span, ErrIntentNotFound)
	}
	p, err := s.ready(name)
	if err != nil {
		return Intent{}, fail(span, err)
	}
	if s.Ledger != nil {
		rec, err := s.Ledger.Get(ctx, name, id)
		switch {
		case err == nil && !owns(rec, userID):
			return Intent{}, fail(span, ErrIntentNotFound)
		case err != nil && !errors.Is(err, ErrIntentNotFound):
			s.log(ctx).Warn().Err(err).Str("intent_id", id).Msg("ledger read failed")
		}
	}

	intent, err := timed(name, "capture", func() (Intent, error) { return p.CaptureIntent(ctx, id) })
	if err != nil {
		return Intent{}, fail(span, err)
	}
	result = string(intent.Status)
	if err := s.Observe(ctx, intent); err != nil {
		s.log(ctx).Error().Err(err).Str("intent_id", id).Msg("settlement after capture failed")
	}
	return intent, nil
}

// Status returns the recorded intent if userID owns it.
func (s *Service) Status(ctx context.Context, name Name, id, userID string) (Record, error) {
	if s.Ledger == nil {
		return Record{}, ErrIntentNotFound
	}
	rec, err := s.Ledger.Get(ctx, name, id)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID == "" || !owns(rec, userID) {
		return Record{}, ErrIntentNotFound
	}
	return rec, nil
}

// Observe records a provider-reported status for an intent. A succeeded
// intent that has not been settled yet gets its invoices marked paid and a
// receipt published; it is flagged settled only once both worked, so a
// failed settlement is retried by the next observation.
func (s *Service) Observe(ctx context.Context, in Intent) error {
	if s.Ledger == nil {
		return nil
	}
	key := string(in.Provider) + ":" + in.ID
	return s.withLock(ctx, key, func(ctx context.Context) error {
		rec, _, err := s.Ledger.SetStatus(ctx, in.Provider, in.ID, in.Status)
		if errors.Is(err, ErrIntentNotFound) {
			rec = Record{
				Provider:         in.Provider,
				IntentID:         in.ID,
				UserID:           in.Metadata[MetaUserID],
				AmountMinorUnits: in.AmountMinorUnits,
				Currency:         in.Currency,
				Metadata:         in.Metadata,
				Status:           in.Status,
			}
			if err := s.Ledger.Put(ctx, rec); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if rec.Status != StatusSucceeded || rec.Settled {
			return nil
		}
		if err := s.settle(ctx, rec, in.PayerEmail); err != nil {
			return err
		}
		rec.Settled = true
		return s.Ledger.Put(ctx, rec)
	})
}

func (s *Service) settle(ctx context.Context, rec Record, email string) error {
	var errs []error
	if s.Settler != nil {
		for _, id := range InvoiceIDs(rec.Metadata) {
			if err := s.Settler.MarkInvoicePaid(ctx, id); err != nil && !errors.Is(err, billing.ErrNotFound) {
				errs = append(errs, fmt.Errorf("mark invoice %d paid: %w", id, err))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if s.Receipts != nil {
		r := receipt.Receipt{
			Provider:         string(rec.Provider),
			IntentID:         rec.IntentID,
			UserID:           rec.UserID,
			AmountMinorUnits: rec.AmountMinorUnits,
			Currency:         rec.Currency,
			Description:      rec.Description,
			Email:            email,
		}
		if err := s.Receipts.Publish(ctx, r); err != nil {
			return fmt.Errorf("publish receipt: %w", err)
		}
	}
	s.log(ctx).Info().Str("provider", string(rec.Provider)).Str("intent_id", rec.IntentID).Msg("payment settled")
	return nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.Locker != nil {
		return s.Locker.WithLock(ctx, "payment:settle:"+key, 30*time.Second, fn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func (s *Service) ready(name Name) (Provider, error) {
	p, err := s.Providers.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !p.Initialized() {
		if name == PayPal {
			return nil, ErrNotInitialized
		}
		return nil, ErrNotConfigured
	}
	return p, nil
}

// Provider returns the registered adapter for name.
func (s *Service) Provider(name Name) (Provider, bool) {
	p, err := s.Providers.Lookup(name)
	return p, err == nil
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}

func owns(rec Record, userID string) bool {
	return rec.UserID == "" || rec.UserID == strings.TrimSpace(userID)
}

// InvoiceIDs extracts invoice ids from intent metadata, including mixed selections.
func InvoiceIDs(meta map[string]string) []int64 {
	if v := meta[MetaInvoiceIDs]; v != "" {
		return ParseIDList(v)
	}
	var ids []int64
	for _, part := range strings.Split(meta[MetaItems], ",") {
		kind, id, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || kind != string(billing.KindInvoice) {
			continue
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func timed(name Name, op string, fn func() (Intent, error)) (Intent, error) {
	start := time.Now()
	in, err := fn()
	obs.ProviderLatency.WithLabelValues(string(name), op).Observe(obs.DurationMillis(time.Since(start)))
	return in, err
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
