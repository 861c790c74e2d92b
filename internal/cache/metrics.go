package cache

import "github.com/prometheus/client_golang/prometheus"

// NoOpMetrics discards all cache metrics.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a no-op cache metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordHit implements Metrics.
func (m *NoOpMetrics) RecordHit() {}

// RecordMiss implements Metrics.
func (m *NoOpMetrics) RecordMiss() {}

// RecordError implements Metrics.
func (m *NoOpMetrics) RecordError() {}

// PrometheusMetrics implements Metrics with counters in a caller-owned
// registry.
type PrometheusMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewPrometheusMetrics creates cache metrics registered on registry.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache reads by outcome",
		},
		[]string{"outcome"},
	)
	registry.MustRegister(outcomes)
	return &PrometheusMetrics{outcomes: outcomes}
}

// RecordHit implements Metrics.
func (m *PrometheusMetrics) RecordHit() {
	m.outcomes.WithLabelValues("hit").Inc()
}

// RecordMiss implements Metrics.
func (m *PrometheusMetrics) RecordMiss() {
	m.outcomes.WithLabelValues("miss").Inc()
}

// RecordError implements Metrics.
func (m *PrometheusMetrics) RecordError() {
	m.outcomes.WithLabelValues("error").Inc()
}
