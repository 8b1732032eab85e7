package payment_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/payment"
)

const whsec = "whsec_test_secret"

func signedEvent(t *testing.T, id, typ, intentID string) (string, string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2020-08-27","data":{"object":{
		"id":%q,"object":"payment_intent","amount":14900,"currency":"usd","status":"succeeded",
		"metadata":{"userId":"42","invoiceIds":"[2]","paymentType":"invoice"}}}}`, id, typ, intentID)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    whsec,
		Timestamp: time.Now(),
	})
	return body, signed.Header
}

func postWebhook(h http.Handler, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookSettlesInvoice(t *testing.T) {
	f := newFixture()
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body, sig := signedEvent(t, "evt_1", "payment_intent.succeeded", "pi_42")
	rec := postWebhook(h, body, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	inv, err := f.store.Invoice(context.Background(), "42", 2)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, inv.Status)
	require.Len(t, f.receipts.all(), 1)

	stored, err := f.svc.Status(context.Background(), payment.Stripe, "pi_42", "42")
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, stored.Status)

	replay := postWebhook(h, body, sig)
	require.Equal(t, http.StatusOK, replay.Code)
	require.Contains(t, replay.Body.String(), `"duplicate":true`)
	require.Len(t, f.receipts.all(), 1)
}

func TestStripeWebhookFailureEventDoesNotSettle(t *testing.T) {
	f := newFixture()
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body, sig := signedEvent(t, "evt_2", "payment_intent.payment_failed", "pi_43")
	rec := postWebhook(h, body, sig)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.svc.Status(context.Background(), payment.Stripe, "pi_43", "42")
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, stored.Status)
	require.Empty(t, f.receipts.all())
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body, _ := signedEvent(t, "evt_3", "payment_intent.succeeded", "pi_44")
	rec := postWebhook(h, body, "t=1,v1=deadbeef")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
}

func TestStripeWebhookIgnoresUnrelatedEvents(t *testing.T) {
	f := newFixture()
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body, sig := signedEvent(t, "evt_4", "customer.created", "pi_45")
	rec := postWebhook(h, body, sig)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.svc.Status(context.Background(), payment.Stripe, "pi_45", "42")
	require.ErrorIs(t, err, payment.ErrIntentNotFound)
}

// flakySettler fails the first n calls, then delegates to the store.
type flakySettler struct {
	billing.Settler
	failures int
	calls    int
}

func (f *flakySettler) MarkInvoicePaid(ctx context.Context, id int64) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.Settler.MarkInvoicePaid(ctx, id)
}

func TestStripeWebhookRetrySettlesAfterFailedSettlement(t *testing.T) {
	f := newFixture()
	settler := &flakySettler{Settler: f.store, failures: 1}
	f.svc.Settler = settler
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body, sig := signedEvent(t, "evt_5", "payment_intent.succeeded", "pi_46")
	first := postWebhook(h, body, sig)
	require.Equal(t, http.StatusInternalServerError, first.Code)

	inv, err := f.store.Invoice(context.Background(), "42", 2)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePending, inv.Status)
	require.Empty(t, f.receipts.all())

	retry := postWebhook(h, body, sig)
	require.Equal(t, http.StatusOK, retry.Code, retry.Body.String())
	require.NotContains(t, retry.Body.String(), "duplicate")
	require.Equal(t, 2, settler.calls)

	inv, err = f.store.Invoice(context.Background(), "42", 2)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, inv.Status)

	stored, err := f.svc.Status(context.Background(), payment.Stripe, "pi_46", "42")
	require.NoError(t, err)
	require.True(t, stored.Settled)
	require.Len(t, f.receipts.all(), 1)

	again := postWebhook(h, body, sig)
	require.Contains(t, again.Body.String(), `"duplicate":true`)
	require.Equal(t, 2, settler.calls)
}

func TestStripeWebhookReleasesClaimOnMalformedIntent(t *testing.T) {
	f := newFixture()
	h := payment.StripeWebhook{Secret: whsec, Service: f.svc, Logger: zerolog.Nop()}

	body := `{"id":"evt_6","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"object":"payment_intent","amount":100}}}`
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    whsec,
		Timestamp: time.Now(),
	})
	rec := postWebhook(h, body, signed.Header)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	first, err := f.svc.Ledger.Claim(context.Background(), "stripe:event:evt_6")
	require.NoError(t, err)
	require.True(t, first)
}
