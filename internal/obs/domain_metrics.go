package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCreateTotal counts payment creation attempts against the provider by outcome.
	PaymentCreateTotal *prometheus.CounterVec
	// PaymentCreateLatency records provider creation latency in milliseconds.
	PaymentCreateLatency *prometheus.HistogramVec
	// ReconcileTotal counts reconciliation runs by entry point and outcome.
	ReconcileTotal *prometheus.CounterVec
	// EbookDeliveryTotal counts e-book emails by ledger path and result.
	EbookDeliveryTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound provider notifications by outcome.
	PaymentWebhookTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_create_total",
			Help:      "Count of payment creation outcomes.",
		}, []string{"method", "result"})
		PaymentCreateLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_create_duration_ms",
			Help:      "Latency of payment creation calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of reconciliation runs by source and outcome.",
		}, []string{"source", "outcome"})
		EbookDeliveryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ebook_delivery_total",
			Help:      "Count of e-book delivery attempts by ledger path and result.",
		}, []string{"path", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"result"})

		PaymentCreateTotal = register(reg, PaymentCreateTotal)
		PaymentCreateLatency = register(reg, PaymentCreateLatency)
		ReconcileTotal = register(reg, ReconcileTotal)
		EbookDeliveryTotal = register(reg, EbookDeliveryTotal)
		PaymentWebhookTotal = register(reg, PaymentWebhookTotal)
	})
}
