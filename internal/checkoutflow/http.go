package checkoutflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/payment"
)

// APIError is a non-2xx answer from the checkout API.
type APIError struct {
	Status    int
	Code      string
	ErrorType string
	Message   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("checkout api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("checkout api: %d: %s", e.Status, e.Message)
}

// HTTPBackend talks to the checkout API the way the site's browser client
// does: JSON bodies and a session cookie held in a jar.
type HTTPBackend struct {
	BaseURL string
	Client  *http.Client
	// SendIdempotencyKeys adds an Idempotency-Key per attempt, method and round.
	SendIdempotencyKeys bool
}

// NewHTTPBackend returns a backend with a cookie jar and traced transport.
func NewHTTPBackend(baseURL string, timeout time.Duration) (*HTTPBackend, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// CreateIntent picks the route matching the selection and payment tab.
func (b *HTTPBackend) CreateIntent(ctx context.Context, req IntentRequest) (Handle, error) {
	sel := req.Selection
	if sel == nil || sel.Len() == 0 {
		return Handle{}, payment.ErrEmptySelection
	}
	amount := sel.Total().InexactFloat64()
	invoices, services, test := split(sel)

	var idem string
	if b.SendIdempotencyKeys {
		idem = req.IdempotencyKey()
	}

	if req.Method == MethodPayPal {
		body := map[string]any{"amount": amount}
		switch {
		case test:
			body["isTestPayment"] = true
		case len(invoices) > 0:
			body["invoiceIds"] = invoices
		case len(services) == 1:
			body["serviceId"] = services[0]
		default:
			return Handle{}, fmt.Errorf("checkoutflow: paypal checkout needs invoices or a single service")
		}
		var out struct {
			ID string `json:"id"`
		}
		if err := b.post(ctx, "/api/create-paypal-order", idem, body, &out); err != nil {
			return Handle{}, err
		}
		return Handle{Provider: payment.PayPal, ID: out.ID, ApprovalToken: out.ID}, nil
	}

	var out struct {
		ClientSecret    string `json:"clientSecret"`
		PaymentIntentID string `json:"paymentIntentId"`
	}
	var err error
	switch {
	case test:
		err = b.post(ctx, "/api/test-payment", idem, map[string]any{}, &out)
	case len(invoices) > 0 && len(services) == 0:
		err = b.post(ctx, "/api/create-invoice-payment-intent", idem, map[string]any{"amount": amount, "invoiceIds": invoices}, &out)
	case len(services) == 1 && len(invoices) == 0:
		err = b.post(ctx, "/api/create-payment-intent", idem, map[string]any{"amount": amount, "serviceId": services[0]}, &out)
	default:
		return Handle{}, fmt.Errorf("checkoutflow: card checkout needs invoices or a single service")
	}
	if err != nil {
		return Handle{}, err
	}
	id := out.PaymentIntentID
	if id == "" {
		id = intentIDFromSecret(out.ClientSecret)
	}
	return Handle{Provider: payment.Stripe, ID: id, ClientSecret: out.ClientSecret}, nil
}

// Capture captures an approved PayPal order and returns its status.
func (b *HTTPBackend) Capture(ctx context.Context, orderID string) (string, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := b.post(ctx, "/api/capture-paypal-order", "", map[string]any{"orderId": orderID}, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (b *HTTPBackend) post(ctx context.Context, path, idem string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idem != "" {
		req.Header.Set(common.IdempotencyHeader, idem)
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb common.ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &APIError{Status: resp.StatusCode, Code: eb.Code, ErrorType: eb.ErrorType, Message: eb.Message}
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// PayPalConfirmer confirms PayPal handles by capturing the order. It assumes
// the buyer approved the order in PayPal's window.
type PayPalConfirmer struct {
	Backend *HTTPBackend
}

func (c PayPalConfirmer) Confirm(ctx context.Context, h Handle) (State, error) {
	status, err := c.Backend.Capture(ctx, h.ID)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusUnauthorized {
		return Failed, nil
	}
	if err != nil {
		return "", err
	}
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return Succeeded, nil
	case "PAYER_ACTION_REQUIRED":
		return RequiresAction, nil
	default:
		return Failed, nil
	}
}

// CompleteChallenge has nothing to do server-side; the buyer acts in
// PayPal's window.
func (PayPalConfirmer) CompleteChallenge(context.Context, Handle) error { return nil }

func split(sel *billing.Selection) (invoices, services []int64, test bool) {
	for _, it := range sel.Items() {
		switch {
		case it.Key() == billing.TestItem().Key():
			test = true
		case it.Kind() == billing.KindInvoice:
			invoices = append(invoices, it.ID())
		default:
			services = append(services, it.ID())
		}
	}
	return invoices, services, test
}

// intentIDFromSecret recovers "pi_123" from "pi_123_secret_abc".
func intentIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret"); i > 0 {
		return secret[:i]
	}
	return ""
}
