package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Name identifies a payment provider.
type Name string

const (
	Stripe Name = "stripe"
	PayPal Name = "paypal"
)

// ParseName normalises a provider label.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case Stripe, PayPal:
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Status is the lifecycle state of a payment intent as last observed.
type Status string

const (
	StatusCreated        Status = "created"
	StatusRequiresAction Status = "requires_action"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// DefaultCurrency is the only currency the checkout charges in.
const DefaultCurrency = "USD"

// Metadata keys attached to every provider intent.
const (
	MetaUserID          = "userId"
	MetaServiceID       = "serviceId"
	MetaServiceIDs      = "serviceIds"
	MetaInvoiceIDs      = "invoiceIds"
	MetaSubscriptionIDs = "subscriptionIds"
	MetaItems           = "items"
	MetaPaymentType     = "paymentType"
)

// IntentRequest is the provider-neutral description of a charge.
type IntentRequest struct {
	AmountMinorUnits int64
	Currency         string
	Description      string
	Metadata         map[string]string
	// IdempotencyKey is forwarded to providers that support it. Empty means
	// every call creates a new intent.
	IdempotencyKey string
}

// Intent is a provider-side intent to collect money.
type Intent struct {
	ID               string            `json:"id"`
	Provider         Name              `json:"provider"`
	AmountMinorUnits int64             `json:"amountMinorUnits"`
	Currency         string            `json:"currency"`
	ClientSecret     string            `json:"-"`
	ApprovalToken    string            `json:"approvalToken,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Status           Status            `json:"status"`
	PayerEmail       string            `json:"-"`
	// Raw is the vendor object returned to clients that expect it verbatim.
	Raw any `json:"-"`
}

// Provider is the capability surface every payment adapter exposes.
type Provider interface {
	Name() Name
	Initialized() bool
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	CaptureIntent(ctx context.Context, id string) (Intent, error)
}

// Registry resolves providers by name.
type Registry map[Name]Provider

// Lookup returns the provider registered under name.
func (r Registry) Lookup(name Name) (Provider, error) {
	p, ok := r[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

var (
	// ErrUnknownProvider is returned for provider names not in the registry.
	ErrUnknownProvider = errors.New("payment: unknown provider")
	// ErrNotConfigured is returned by Stripe when no secret key is set.
	ErrNotConfigured = errors.New("payment: provider not configured")
	// ErrNotInitialized is returned by PayPal when credentials are missing.
	ErrNotInitialized = errors.New("payment: provider not initialized")
	// ErrCaptureUnsupported is returned by providers that confirm client-side.
	ErrCaptureUnsupported = errors.New("payment: capture not supported")
	// ErrEmptySelection is returned when building a request from no items.
	ErrEmptySelection = errors.New("payment: selection is empty")
	// ErrInvalidAmount is returned when the selection total is not positive.
	ErrInvalidAmount = errors.New("payment: amount must be positive")
	// ErrIntentNotFound is returned when the ledger has no record for an intent.
	ErrIntentNotFound = errors.New("payment: intent not found")
)

// ProviderError is a failure reported by a payment provider.
type ProviderError struct {
	Provider   Name
	Type       string
	Code       string
	Message    string
	HTTPStatus int
	// AuthFailure marks credential problems between this service and the
	// provider, not the payer's.
	AuthFailure bool
	Err         error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }
