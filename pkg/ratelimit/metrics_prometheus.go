package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// All metrics live in a custom registry rather than the global one, so
// multiple limiter instances (and tests) never collide. Expose the
// registry via promhttp.HandlerFor.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// decisionsTotal counts checks by scope and outcome.
	// Labels:
	//   - scope: rate limit scope (e.g. "CHAT_FREE")
	//   - outcome: "allowed", "denied" or "fail_open"
	decisionsTotal *prometheus.CounterVec

	// penaltiesTotal counts penalty records created, by scope.
	penaltiesTotal *prometheus.CounterVec

	// checkDuration tracks rate limit check latency by scope.
	//
	// Buckets target the single-store-round-trip budget: sub-5ms is
	// healthy, above 100ms the store guard should be tripping.
	checkDuration *prometheus.HistogramVec

	// storeGuardState tracks the store guard state as a gauge:
	// 0=closed, 1=open, 2=half-open.
	storeGuardState prometheus.Gauge
}

// NewPrometheusMetrics creates a PrometheusMetrics with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit checks by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	penaltiesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_penalties_total",
			Help: "Penalty records created by scope",
		},
		[]string{"scope"},
	)

	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of rate limit checks",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"scope"},
	)

	storeGuardState := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratelimit_store_guard_state",
			Help: "Store guard state (0=closed, 1=open, 2=half-open)",
		},
	)

	registry.MustRegister(decisionsTotal, penaltiesTotal, checkDuration, storeGuardState)

	return &PrometheusMetrics{
		registry:        registry,
		decisionsTotal:  decisionsTotal,
		penaltiesTotal:  penaltiesTotal,
		checkDuration:   checkDuration,
		storeGuardState: storeGuardState,
	}
}

// Registry returns the metrics registry for exposing via HTTP.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAllowed implements Metrics.
func (m *PrometheusMetrics) RecordAllowed(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "allowed").Inc()
}

// RecordDenied implements Metrics.
func (m *PrometheusMetrics) RecordDenied(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "denied").Inc()
}

// RecordFailOpen implements Metrics.
func (m *PrometheusMetrics) RecordFailOpen(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "fail_open").Inc()
}

// RecordPenalty implements Metrics.
func (m *PrometheusMetrics) RecordPenalty(scope string) {
	m.penaltiesTotal.WithLabelValues(scope).Inc()
}

// RecordCheckDuration implements Metrics.
func (m *PrometheusMetrics) RecordCheckDuration(scope string, duration time.Duration) {
	m.checkDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordStoreGuardState implements Metrics.
func (m *PrometheusMetrics) RecordStoreGuardState(state string) {
	switch state {
	case "closed":
		m.storeGuardState.Set(0)
	case "open":
		m.storeGuardState.Set(1)
	case "half-open":
		m.storeGuardState.Set(2)
	}
}
