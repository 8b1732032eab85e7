package resilience

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport is an http.RoundTripper that consults a Breaker before every
// outbound call. It never retries: provider calls that create money movement
// are only safe to repeat with an idempotency key, which the caller owns.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	if !t.Breaker.Allow(ctx) {
		BreakerRejectedTotal.WithLabelValues(t.Breaker.label()).Inc()
		return nil, fmt.Errorf("%s: %w", req.URL.Host, ErrOpenCircuit)
	}
	resp, err := base.RoundTrip(req)
	// 4xx answers mean the provider is healthy and rejected the input.
	t.Breaker.Report(ctx, err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	Target         string
	Timeout        time.Duration
	MinRequests    int
	FailureRatio   float64
	OpenFor        time.Duration
	Logger         zerolog.Logger
	BaseTransport  http.RoundTripper
	DisableTracing bool
}

// NewHTTPClient builds an http.Client for one provider: a per-target breaker
// wrapped in an OpenTelemetry transport with an overall request timeout.
func NewHTTPClient(opts ClientOptions) *http.Client {
	breaker := NewBreaker(opts.MinRequests, opts.FailureRatio, opts.OpenFor).
		WithTarget(opts.Target).
		WithLogger(opts.Logger)
	base := opts.BaseTransport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	var rt http.RoundTripper = &Transport{Base: base, Breaker: breaker}
	if !opts.DisableTracing {
		rt = otelhttp.NewTransport(rt)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Transport: rt, Timeout: timeout}
}
