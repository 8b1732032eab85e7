package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/payment"
)

type paypalServer struct {
	*httptest.Server
	tokenCalls atomic.Int32
	lastOrder  map[string]any
}

func newPayPalServer(t *testing.T, tokenStatus int) *paypalServer {
	t.Helper()
	ps := &paypalServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		ps.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer A21AA", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ps.lastOrder = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","intent":"CAPTURE"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"COMPLETED","payer":{"email_address":"client@example.com"}}`))
	})
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func TestPayPalCreateAndCaptureOrder(t *testing.T) {
	srv := newPayPalServer(t, http.StatusOK)
	p := payment.NewPayPal(payment.PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBase: srv.URL})
	require.True(t, p.Initialized())

	in, err := p.CreateIntent(context.Background(), payment.IntentRequest{
		AmountMinorUnits: 44800,
		Currency:         "USD",
		Description:      "INV-2025-002; INV-2025-003",
		Metadata:         map[string]string{"userId": "42"},
	})
	require.NoError(t, err)
	require.Equal(t, "5O190127TN364715T", in.ID)
	require.Equal(t, in.ID, in.ApprovalToken)
	require.Equal(t, payment.StatusCreated, in.Status)
	require.NotNil(t, in.Raw)

	require.Equal(t, "CAPTURE", srv.lastOrder["intent"])
	units := srv.lastOrder["purchase_units"].([]any)
	require.Len(t, units, 1)
	unit := units[0].(map[string]any)
	require.Equal(t, "42", unit["custom_id"])
	amount := unit["amount"].(map[string]any)
	require.Equal(t, "448.00", amount["value"])
	require.Equal(t, "USD", amount["currency_code"])

	captured, err := p.CaptureIntent(context.Background(), in.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, captured.Status)
	require.Equal(t, "client@example.com", captured.PayerEmail)

	require.Equal(t, int32(1), srv.tokenCalls.Load())
}

func TestPayPalTokenRejectionIsAuthFailure(t *testing.T) {
	srv := newPayPalServer(t, http.StatusUnauthorized)
	p := payment.NewPayPal(payment.PayPalConfig{ClientID: "id", ClientSecret: "wrong", APIBase: srv.URL})

	_, err := p.CreateIntent(context.Background(), payment.IntentRequest{AmountMinorUnits: 100, Currency: "USD"})
	var pe *payment.ProviderError
	require.True(t, errors.As(err, &pe))
	require.True(t, pe.AuthFailure)
	require.Equal(t, http.StatusUnauthorized, pe.HTTPStatus)
}

func TestPayPalWithoutCredentials(t *testing.T) {
	p := payment.NewPayPal(payment.PayPalConfig{ClientID: "id"})
	require.False(t, p.Initialized())

	_, err := p.CreateIntent(context.Background(), payment.IntentRequest{AmountMinorUnits: 100})
	require.ErrorIs(t, err, payment.ErrNotInitialized)
	_, err = p.CaptureIntent(context.Background(), "ORDER")
	require.ErrorIs(t, err, payment.ErrNotInitialized)

	d := p.Diagnostics()
	require.False(t, d.Initialized)
	require.True(t, d.ClientIDConfigured)
	require.False(t, d.ClientSecretConfigured)
	require.Equal(t, payment.EnvSandbox, d.Environment)
	require.Equal(t, "https://api-m.sandbox.paypal.com", d.APIEndpoint)
	require.NotEmpty(t, d.Message)
}

func TestPayPalEnvironmentFollowsProductionFlag(t *testing.T) {
	p := payment.NewPayPal(payment.PayPalConfig{ClientID: "id", ClientSecret: "s", Production: true})
	d := p.Diagnostics()
	require.True(t, d.Initialized)
	require.Equal(t, payment.EnvLive, d.Environment)
	require.Equal(t, "https://api-m.paypal.com", d.APIEndpoint)
}
