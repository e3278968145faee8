package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentAttemptTotal counts payment attempts by method, backend and outcome.
	PaymentAttemptTotal *prometheus.CounterVec
	// PaymentFallbackTotal counts fallback hops by source backend and reason.
	PaymentFallbackTotal *prometheus.CounterVec
	// FeeLookupTotal counts category handling-fee lookups by outcome.
	FeeLookupTotal *prometheus.CounterVec
	// PricingComputeSeconds records pricing computation latency.
	PricingComputeSeconds prometheus.Histogram
	// CheckoutTotal counts checkout outcomes.
	CheckoutTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentAttemptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_attempt_total",
			Help:      "Count of payment attempt outcomes.",
		}, []string{"method", "backend", "result"})
		PaymentFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_fallback_total",
			Help:      "Count of fallback hops between payment backends.",
		}, []string{"from", "reason"})
		FeeLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_lookup_total",
			Help:      "Count of category handling-fee lookups by outcome.",
		}, []string{"result"})
		PricingComputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_compute_duration_ms",
			Help:      "Latency of order totals computation in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, PaymentAttemptTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentAttemptTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentFallbackTotal = v
			}
		})
		mustRegisterCollector(reg, FeeLookupTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FeeLookupTotal = v
			}
		})
		mustRegisterCollector(reg, PricingComputeSeconds, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				PricingComputeSeconds = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, c prometheus.Collector, replace func(prometheus.Collector)) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			replace(are.ExistingCollector)
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
