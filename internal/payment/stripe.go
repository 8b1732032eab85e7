package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// URL overrides the API base, used against local test servers.
	URL string
}

// StripeProvider creates card payment intents confirmed client-side.
type StripeProvider struct {
	client *paymentintent.Client
}

// NewStripe builds the adapter. Without a secret key the adapter is
// returned disabled and every call fails with ErrNotConfigured.
func NewStripe(cfg StripeConfig) *StripeProvider {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return &StripeProvider{}
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     stripeLogger{log: cfg.Logger.With().Str("provider", string(Stripe)).Logger()},
	}
	if cfg.URL != "" {
		bc.URL = stripe.String(cfg.URL)
	}
	return &StripeProvider{client: &paymentintent.Client{
		B:   stripe.GetBackendWithConfig(stripe.APIBackend, bc),
		Key: key,
	}}
}

func (s *StripeProvider) Name() Name { return Stripe }

func (s *StripeProvider) Initialized() bool { return s != nil && s.client != nil }

// CreateIntent creates a PaymentIntent with automatic payment methods.
func (s *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if !s.Initialized() {
		return Intent{}, ErrNotConfigured
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinorUnits),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.client.New(params)
	if err != nil {
		return Intent{}, stripeError(err)
	}
	return stripeIntent(pi), nil
}

// CaptureIntent is unsupported: card payments are confirmed by the browser
// with the client secret and reported back through webhooks.
func (s *StripeProvider) CaptureIntent(context.Context, string) (Intent, error) {
	if !s.Initialized() {
		return Intent{}, ErrNotConfigured
	}
	return Intent{}, ErrCaptureUnsupported
}

func stripeIntent(pi *stripe.PaymentIntent) Intent {
	return Intent{
		ID:               pi.ID,
		Provider:         Stripe,
		AmountMinorUnits: pi.Amount,
		Currency:         strings.ToUpper(string(pi.Currency)),
		ClientSecret:     pi.ClientSecret,
		Metadata:         pi.Metadata,
		Status:           StripeStatus(pi.Status),
		PayerEmail:       pi.ReceiptEmail,
		Raw:              pi,
	}
}

// StripeStatus maps a PaymentIntent status onto the provider-neutral set.
func StripeStatus(st stripe.PaymentIntentStatus) Status {
	switch st {
	case stripe.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	default:
		return StatusCreated
	}
}

func stripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &ProviderError{Provider: Stripe, Message: err.Error(), Err: err}
	}
	return &ProviderError{
		Provider:    Stripe,
		Type:        string(se.Type),
		Code:        string(se.Code),
		Message:     se.Msg,
		HTTPStatus:  se.HTTPStatusCode,
		AuthFailure: se.HTTPStatusCode == http.StatusUnauthorized,
		Err:         err,
	}
}

// stripeLogger routes stripe-go's leveled logging through zerolog.
type stripeLogger struct {
	log zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
