// Package metrics exposes Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. Constructed once and
// injected; nothing registers on the global default registry.
type Metrics struct {
	PlansGenerated        prometheus.Counter
	SettlementTransitions *prometheus.CounterVec
	GatewayCalls          *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
}

// New creates and registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PlansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitex_settlement_plans_generated_total",
			Help: "Number of settlement plan generations that committed.",
		}),
		SettlementTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitex_settlement_transitions_total",
			Help: "Settlement lifecycle transitions by resulting status.",
		}, []string{"status"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitex_gateway_calls_total",
			Help: "Payment gateway calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitex_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	reg.MustRegister(m.PlansGenerated, m.SettlementTransitions, m.GatewayCalls, m.RequestDuration)
	return m
}
