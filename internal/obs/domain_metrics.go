package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingComputeTotal counts pricing computations by outcome (ok, degraded, error).
	PricingComputeTotal *prometheus.CounterVec
	// PricingComputeLatency records pricing computation latency in milliseconds.
	PricingComputeLatency prometheus.Histogram
	// PricingFailOpenTotal counts upstream lookups that degraded to neutral defaults.
	PricingFailOpenTotal *prometheus.CounterVec
	// CouponApplyTotal counts coupon submissions by outcome.
	CouponApplyTotal *prometheus.CounterVec
	// SignalsTotal counts recompute signals emitted per topic.
	SignalsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_compute_total",
			Help:      "Count of pricing computations by outcome.",
		}, []string{"result"})
		PricingComputeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_compute_duration_ms",
			Help:      "Latency of pricing computations in milliseconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250},
		})
		PricingFailOpenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_failopen_total",
			Help:      "Count of upstream failures replaced by neutral defaults.",
		}, []string{"source"})
		CouponApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_apply_total",
			Help:      "Count of coupon submissions by outcome.",
		}, []string{"result"})
		SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_signals_total",
			Help:      "Count of recompute signals emitted by topic.",
		}, []string{"topic"})

		mustRegisterCollector(reg, PricingComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingComputeTotal = v
			}
		})
		mustRegisterCollector(reg, PricingComputeLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				PricingComputeLatency = v
			}
		})
		mustRegisterCollector(reg, PricingFailOpenTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingFailOpenTotal = v
			}
		})
		mustRegisterCollector(reg, CouponApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponApplyTotal = v
			}
		})
		mustRegisterCollector(reg, SignalsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SignalsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
