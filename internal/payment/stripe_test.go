package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/payment"
)

func TestStripeCreateIntent(t *testing.T) {
	var gotIdem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "44800", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "42", r.PostForm.Get("metadata[userId]"))
		require.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))
		gotIdem = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":44800,"currency":"usd",
			"client_secret":"pi_123_secret_abc","status":"requires_payment_method","metadata":{"userId":"42"}}`))
	}))
	defer srv.Close()

	p := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test_123", URL: srv.URL, Logger: zerolog.Nop()})
	require.True(t, p.Initialized())

	in, err := p.CreateIntent(context.Background(), payment.IntentRequest{
		AmountMinorUnits: 44800,
		Currency:         "USD",
		Metadata:         map[string]string{"userId": "42"},
		IdempotencyKey:   "idem-1",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", in.ID)
	require.Equal(t, "pi_123_secret_abc", in.ClientSecret)
	require.Equal(t, payment.StatusCreated, in.Status)
	require.Equal(t, "USD", in.Currency)
	require.Equal(t, "idem-1", gotIdem)
}

func TestStripeMapsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	p := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test_123", URL: srv.URL, Logger: zerolog.Nop()})
	_, err := p.CreateIntent(context.Background(), payment.IntentRequest{AmountMinorUnits: 100, Currency: "USD"})

	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, payment.Stripe, pe.Provider)
	require.Equal(t, "card_error", pe.Type)
	require.Equal(t, "card_declined", pe.Code)
	require.Equal(t, "Your card was declined.", pe.Message)
	require.Equal(t, http.StatusPaymentRequired, pe.HTTPStatus)
	require.False(t, pe.AuthFailure)
}

func TestStripeWithoutKeyIsDisabled(t *testing.T) {
	p := payment.NewStripe(payment.StripeConfig{})
	require.False(t, p.Initialized())

	_, err := p.CreateIntent(context.Background(), payment.IntentRequest{AmountMinorUnits: 100})
	require.ErrorIs(t, err, payment.ErrNotConfigured)
	_, err = p.CaptureIntent(context.Background(), "pi_1")
	require.ErrorIs(t, err, payment.ErrNotConfigured)
}

func TestStripeCaptureIsUnsupported(t *testing.T) {
	p := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test_123"})
	_, err := p.CaptureIntent(context.Background(), "pi_1")
	require.ErrorIs(t, err, payment.ErrCaptureUnsupported)
}
