package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/obs"
	"github.com/noah-isme/agency-api/internal/payment"
	"github.com/noah-isme/agency-api/internal/payment/paymenttest"
	"github.com/noah-isme/agency-api/internal/receipt"
)

type capturedReceipts struct {
	mu   sync.Mutex
	list []receipt.Receipt
}

func (c *capturedReceipts) Publish(_ context.Context, r receipt.Receipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, r)
	return nil
}

func (c *capturedReceipts) all() []receipt.Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]receipt.Receipt(nil), c.list...)
}

type fixture struct {
	svc      *payment.Service
	stripe   *paymenttest.Provider
	paypal   *paymenttest.Provider
	store    *billing.MemStore
	receipts *capturedReceipts
}

func newFixture() fixture {
	f := fixture{
		stripe:   paymenttest.New(payment.Stripe),
		paypal:   paymenttest.New(payment.PayPal),
		store:    billing.NewMemStore(),
		receipts: &capturedReceipts{},
	}
	f.svc = &payment.Service{
		Providers: payment.Registry{payment.Stripe: f.stripe, payment.PayPal: f.paypal},
		Ledger:    payment.NewMemLedger(),
		Receipts:  f.receipts,
		Settler:   f.store,
		Logger:    zerolog.Nop(),
	}
	return f
}

func invoiceSelection(t *testing.T, store *billing.MemStore, ids ...int64) *billing.Selection {
	t.Helper()
	sel, err := billing.SelectInvoices(context.Background(), store, "42", ids...)
	require.NoError(t, err)
	return sel
}

func TestServiceCreateIntentRecordsLedger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	before := testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("stripe", "invoice", "success"))

	in, err := f.svc.CreateIntent(ctx, payment.Stripe, invoiceSelection(t, f.store, 2, 3), "42",
		payment.CreateOptions{IdempotencyKey: "k-1"})
	require.NoError(t, err)
	require.NotEmpty(t, in.ClientSecret)

	req := f.stripe.LastRequest()
	require.Equal(t, int64(44800), req.AmountMinorUnits)
	require.Equal(t, "k-1", req.IdempotencyKey)

	rec, err := f.svc.Status(ctx, payment.Stripe, in.ID, "42")
	require.NoError(t, err)
	require.Equal(t, payment.StatusCreated, rec.Status)
	require.Equal(t, "[2,3]", rec.Metadata["invoiceIds"])

	after := testutil.ToFloat64(obs.PaymentIntentTotal.WithLabelValues("stripe", "invoice", "success"))
	require.Equal(t, before+1, after)
}

func TestServiceCreateIntentWithoutKeyCreatesDistinctIntents(t *testing.T) {
	f := newFixture()
	sel := billing.NewSelection(billing.TestItem())

	a, err := f.svc.CreateIntent(context.Background(), payment.Stripe, sel, "", payment.CreateOptions{})
	require.NoError(t, err)
	b, err := f.svc.CreateIntent(context.Background(), payment.Stripe, sel, "", payment.CreateOptions{})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestServiceMetadataOverrides(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateIntent(context.Background(), payment.PayPal, billing.NewSelection(billing.TestItem()), "",
		payment.CreateOptions{Metadata: map[string]string{"paymentType": "test"}})
	require.NoError(t, err)
	require.Equal(t, "test", f.paypal.LastRequest().Metadata["paymentType"])
	require.Equal(t, int64(100), f.paypal.LastRequest().AmountMinorUnits)
}

func TestServiceRejectsUninitializedProviders(t *testing.T) {
	f := newFixture()
	f.stripe.Disabled = true
	f.paypal.Disabled = true
	sel := billing.NewSelection(billing.TestItem())

	_, err := f.svc.CreateIntent(context.Background(), payment.Stripe, sel, "42", payment.CreateOptions{})
	require.ErrorIs(t, err, payment.ErrNotConfigured)
	_, err = f.svc.CreateIntent(context.Background(), payment.PayPal, sel, "42", payment.CreateOptions{})
	require.ErrorIs(t, err, payment.ErrNotInitialized)
	require.Empty(t, f.stripe.Requests)

	_, err = f.svc.CreateIntent(context.Background(), payment.Name("square"), sel, "42", payment.CreateOptions{})
	require.ErrorIs(t, err, payment.ErrUnknownProvider)
}

func TestServiceCaptureSettlesOnce(t *testing.T) {
	f := newFixture()
	f.paypal.PayerEmail = "client@example.com"
	ctx := context.Background()

	in, err := f.svc.CreateIntent(ctx, payment.PayPal, invoiceSelection(t, f.store, 2), "42", payment.CreateOptions{})
	require.NoError(t, err)

	captured, err := f.svc.Capture(ctx, payment.PayPal, in.ID, "42")
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, captured.Status)

	inv, err := f.store.Invoice(ctx, "42", 2)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, inv.Status)

	require.NoError(t, f.svc.Observe(ctx, captured))
	got := f.receipts.all()
	require.Len(t, got, 1)
	require.Equal(t, int64(14900), got[0].AmountMinorUnits)
	require.Equal(t, "client@example.com", got[0].Email)

	rec, err := f.svc.Status(ctx, payment.PayPal, in.ID, "42")
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, rec.Status)
}

func TestServiceCaptureChecksOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in, err := f.svc.CreateIntent(ctx, payment.PayPal, invoiceSelection(t, f.store, 3), "42", payment.CreateOptions{})
	require.NoError(t, err)

	_, err = f.svc.Capture(ctx, payment.PayPal, in.ID, "99")
	require.ErrorIs(t, err, payment.ErrIntentNotFound)
	require.Empty(t, f.paypal.Captured)

	_, err = f.svc.Status(ctx, payment.PayPal, in.ID, "99")
	require.ErrorIs(t, err, payment.ErrIntentNotFound)
}

func TestServiceCaptureSurfacesProviderErrors(t *testing.T) {
	f := newFixture()
	f.paypal.CaptureErr = &payment.ProviderError{Provider: payment.PayPal, Message: "ORDER_NOT_APPROVED"}

	_, err := f.svc.Capture(context.Background(), payment.PayPal, "ORDER-X", "42")
	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	require.Empty(t, f.receipts.all())
}

func TestServiceObserveUnknownIntentCreatesRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	err := f.svc.Observe(ctx, payment.Intent{
		ID:               "pi_ext",
		Provider:         payment.Stripe,
		AmountMinorUnits: 29900,
		Currency:         "USD",
		Metadata:         map[string]string{"userId": "42", "items": "invoice:3,service:1"},
		Status:           payment.StatusSucceeded,
	})
	require.NoError(t, err)

	inv, err := f.store.Invoice(ctx, "42", 3)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, inv.Status)
	require.Len(t, f.receipts.all(), 1)
}
