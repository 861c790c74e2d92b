package ratelimit

import "time"

// NoOpMetrics is a Metrics implementation that discards all values.
//
// It is the default for tests and for deployments that do not scrape
// metrics.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordAllowed implements Metrics.
func (m *NoOpMetrics) RecordAllowed(string) {}

// RecordDenied implements Metrics.
func (m *NoOpMetrics) RecordDenied(string) {}

// RecordFailOpen implements Metrics.
func (m *NoOpMetrics) RecordFailOpen(string) {}

// RecordPenalty implements Metrics.
func (m *NoOpMetrics) RecordPenalty(string) {}

// RecordCheckDuration implements Metrics.
func (m *NoOpMetrics) RecordCheckDuration(string, time.Duration) {}

// RecordStoreGuardState implements Metrics.
func (m *NoOpMetrics) RecordStoreGuardState(string) {}
