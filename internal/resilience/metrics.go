package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors, labelled by the guarded upstream (for example "mercadopago").
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_breaker_state",
		Help: "Current breaker state per upstream: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_breaker_transitions_total",
		Help: "Breaker state transitions per upstream.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_breaker_opened_total",
		Help: "Times the breaker tripped open per upstream.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
