package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState exposes the current state per provider: 0=closed, 1=open, 2=half-open.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_breaker_state",
			Help: "Current provider breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_breaker_transition_total",
			Help: "Count of provider breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_breaker_open_total",
			Help: "Number of times a provider breaker opened",
		},
		[]string{"target"},
	)
	// BreakerRejectedTotal counts calls refused while a breaker was open.
	BreakerRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_breaker_rejected_total",
			Help: "Number of provider calls rejected by an open breaker",
		},
		[]string{"target"},
	)
)

// MustRegisterMetrics registers breaker collectors on reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejectedTotal} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
