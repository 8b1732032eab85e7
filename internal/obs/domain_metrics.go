package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentCaptureTotal counts provider capture outcomes.
	PaymentCaptureTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// ProviderLatency records provider call latency in milliseconds.
	ProviderLatency *prometheus.HistogramVec
	// ReceiptTasksTotal counts receipt task enqueue and processing outcomes.
	ReceiptTasksTotal *prometheus.CounterVec
)

func init() {
	// Collectors exist before registration so packages and tests can record
	// without wiring a registry.
	PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intent_total",
		Help: "Count of payment intent creation outcomes.",
	}, []string{"provider", "kind", "result"})
	PaymentCaptureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_capture_total",
		Help: "Count of payment capture outcomes.",
	}, []string{"provider", "result"})
	PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_total",
		Help: "Count of processed payment webhooks by outcome.",
	}, []string{"provider", "result"})
	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_duration_ms",
		Help:    "Latency of payment provider calls in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"provider", "operation"})
	ReceiptTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_tasks_total",
		Help: "Count of receipt task outcomes by stage.",
	}, []string{"stage", "result"})
}

// MustRegisterDomainMetrics registers the payment collectors on reg once per
// process; a nil reg selects the default registerer.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		register(reg, PaymentIntentTotal)
		register(reg, PaymentCaptureTotal)
		register(reg, PaymentWebhookTotal)
		register(reg, ProviderLatency)
		register(reg, ReceiptTasksTotal)
	})
}
