package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/plutov/paypal/v4"
)

// PayPal environments.
const (
	EnvSandbox = "sandbox"
	EnvLive    = "live"
)

// PayPalConfig configures the PayPal adapter.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	// Production selects the live API; everything else uses the sandbox.
	Production bool
	HTTPClient *http.Client
	// APIBase overrides the environment endpoint, used against test servers.
	APIBase string
}

// PayPalProvider creates and captures PayPal orders.
type PayPalProvider struct {
	cfg     PayPalConfig
	env     string
	base    string
	client  *paypal.Client
	initErr error

	mu       sync.Mutex
	hasToken bool
}

// NewPayPal builds the adapter. Missing credentials leave it uninitialized.
func NewPayPal(cfg PayPalConfig) *PayPalProvider {
	p := &PayPalProvider{cfg: cfg, env: EnvSandbox, base: paypal.APIBaseSandBox}
	if cfg.Production {
		p.env, p.base = EnvLive, paypal.APIBaseLive
	}
	if cfg.APIBase != "" {
		p.base = cfg.APIBase
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return p
	}
	c, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, p.base)
	if err != nil {
		p.initErr = err
		return p
	}
	if cfg.HTTPClient != nil {
		c.Client = cfg.HTTPClient
	}
	p.client = c
	return p
}

func (p *PayPalProvider) Name() Name { return PayPal }

func (p *PayPalProvider) Initialized() bool { return p != nil && p.client != nil }

// Environment reports which PayPal environment the adapter talks to.
func (p *PayPalProvider) Environment() string { return p.env }

// ensureToken fetches the first access token; the SDK refreshes it later.
func (p *PayPalProvider) ensureToken(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasToken {
		return nil
	}
	if _, err := p.client.GetAccessToken(ctx); err != nil {
		return err
	}
	p.hasToken = true
	return nil
}

// CreateIntent creates an order with intent CAPTURE and a single purchase unit.
func (p *PayPalProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if !p.Initialized() {
		return Intent{}, ErrNotInitialized
	}
	if err := p.ensureToken(ctx); err != nil {
		return Intent{}, paypalError(err)
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	unit := paypal.PurchaseUnitRequest{
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(currency),
			Value:    FormatMinor(req.AmountMinorUnits),
		},
		CustomID:    req.Metadata[MetaUserID],
		Description: req.Description,
	}
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, []paypal.PurchaseUnitRequest{unit}, nil, nil)
	if err != nil {
		return Intent{}, paypalError(err)
	}
	return Intent{
		ID:               order.ID,
		Provider:         PayPal,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         strings.ToUpper(currency),
		ApprovalToken:    order.ID,
		Metadata:         req.Metadata,
		Status:           paypalStatus(order.Status),
		Raw:              order,
	}, nil
}

// CaptureIntent captures an approved order.
func (p *PayPalProvider) CaptureIntent(ctx context.Context, id string) (Intent, error) {
	if !p.Initialized() {
		return Intent{}, ErrNotInitialized
	}
	if err := p.ensureToken(ctx); err != nil {
		return Intent{}, paypalError(err)
	}
	res, err := p.client.CaptureOrder(ctx, id, paypal.CaptureOrderRequest{})
	if err != nil {
		return Intent{}, paypalError(err)
	}
	in := Intent{
		ID:            id,
		Provider:      PayPal,
		ApprovalToken: id,
		Status:        paypalStatus(res.Status),
		Raw:           res,
	}
	if res.Payer != nil {
		in.PayerEmail = res.Payer.EmailAddress
	}
	return in, nil
}

func paypalStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return StatusSucceeded
	case "PAYER_ACTION_REQUIRED":
		return StatusRequiresAction
	case "VOIDED":
		return StatusCanceled
	case "CREATED", "SAVED", "APPROVED":
		return StatusCreated
	default:
		return StatusFailed
	}
}

func paypalError(err error) error {
	pe := &ProviderError{Provider: PayPal, Message: err.Error(), Err: err}
	var er *paypal.ErrorResponse
	if errors.As(err, &er) {
		if er.Message != "" {
			pe.Message = er.Message
		}
		pe.Code = er.Name
		if er.Response != nil {
			pe.HTTPStatus = er.Response.StatusCode
		}
	}
	if pe.HTTPStatus == http.StatusUnauthorized ||
		strings.Contains(strings.ToLower(err.Error()), "authentication failed") {
		pe.AuthFailure = true
	}
	return pe
}

// Diagnostics describes the adapter configuration without exposing secrets.
type Diagnostics struct {
	Initialized            bool   `json:"initialized"`
	ClientIDConfigured     bool   `json:"clientIdConfigured"`
	ClientSecretConfigured bool   `json:"clientSecretConfigured"`
	Environment            string `json:"environment"`
	APIEndpoint            string `json:"apiEndpoint"`
	Message                string `json:"message"`
}

// Diagnostics reports whether the adapter can reach PayPal and why not.
func (p *PayPalProvider) Diagnostics() Diagnostics {
	d := Diagnostics{
		Initialized:            p.Initialized(),
		ClientIDConfigured:     strings.TrimSpace(p.cfg.ClientID) != "",
		ClientSecretConfigured: strings.TrimSpace(p.cfg.ClientSecret) != "",
		Environment:            p.env,
		APIEndpoint:            p.base,
	}
	switch {
	case d.Initialized:
		d.Message = "PayPal client is initialized"
	case p.initErr != nil:
		d.Message = "PayPal client failed to initialize: " + p.initErr.Error()
	default:
		d.Message = "PayPal credentials are missing"
	}
	return d
}
