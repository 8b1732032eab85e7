// Package paymenttest provides an in-memory payment.Provider for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/agency-api/internal/payment"
)

// Provider is a scriptable payment.Provider.
type Provider struct {
	ProviderName payment.Name
	Disabled     bool
	CreateErr    error
	CaptureErr   error
	// CaptureStatus is reported by CaptureIntent; defaults to succeeded.
	CaptureStatus payment.Status
	PayerEmail    string

	mu       sync.Mutex
	seq      int
	Requests []payment.IntentRequest
	Captured []string
}

// New returns an initialized fake for name.
func New(name payment.Name) *Provider {
	return &Provider{ProviderName: name}
}

func (p *Provider) Name() payment.Name { return p.ProviderName }

func (p *Provider) Initialized() bool { return !p.Disabled }

func (p *Provider) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.CreateErr != nil {
		return payment.Intent{}, p.CreateErr
	}
	p.seq++
	id := fmt.Sprintf("%s_%d", p.ProviderName, p.seq)
	in := payment.Intent{
		ID:               id,
		Provider:         p.ProviderName,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		Metadata:         req.Metadata,
		Status:           payment.StatusCreated,
	}
	switch p.ProviderName {
	case payment.PayPal:
		in.ApprovalToken = id
		in.Raw = map[string]any{"id": id, "status": "CREATED"}
	default:
		in.ClientSecret = id + "_secret"
	}
	return in, nil
}

func (p *Provider) CaptureIntent(_ context.Context, id string) (payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CaptureErr != nil {
		return payment.Intent{}, p.CaptureErr
	}
	if p.ProviderName == payment.Stripe {
		return payment.Intent{}, payment.ErrCaptureUnsupported
	}
	p.Captured = append(p.Captured, id)
	st := p.CaptureStatus
	if st == "" {
		st = payment.StatusSucceeded
	}
	return payment.Intent{
		ID:         id,
		Provider:   p.ProviderName,
		Status:     st,
		PayerEmail: p.PayerEmail,
		Raw:        map[string]any{"id": id, "status": "COMPLETED"},
	}, nil
}

// LastRequest returns the most recent CreateIntent request.
func (p *Provider) LastRequest() payment.IntentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return payment.IntentRequest{}
	}
	return p.Requests[len(p.Requests)-1]
}
