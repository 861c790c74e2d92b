// Package circuitbreaker guards calls to downstream dependencies with
// per-dependency circuit breakers, built on github.com/sony/gobreaker.
//
// A breaker trips after a configured number of consecutive failures,
// fails fast for the recovery timeout, then lets probe calls through;
// the configured number of consecutive probe successes closes it again
// and any probe failure reopens it.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Dependency names the downstreams this layer guards.
const (
	DependencyAI       = "AI"
	DependencyDatabase = "DATABASE"
	DependencyPayment  = "PAYMENT"
)

// ErrDependencyUnavailable is the sentinel matched by errors.Is when a
// breaker rejects a call without invoking the dependency.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// UnavailableError reports a fast-failed call. It unwraps to
// ErrDependencyUnavailable and carries the dependency name and the
// remaining cooldown for Retry-After style hints.
type UnavailableError struct {
	Dependency string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("dependency %s unavailable (circuit open)", e.Dependency)
}

// Unwrap returns ErrDependencyUnavailable so errors.Is matches.
func (e *UnavailableError) Unwrap() error {
	return ErrDependencyUnavailable
}

// Config holds the configuration for one dependency's breaker.
type Config struct {
	// Name is the dependency name, used in errors, logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that
	// opens the circuit.
	FailureThreshold uint32

	// RecoveryTimeout is how long the circuit stays open before
	// probe calls are allowed.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state required to close the circuit.
	SuccessThreshold uint32
}

// AIConfig returns the breaker configuration for the AI inference
// dependency. Trips fast: model providers fail loudly and expensively.
func AIConfig() Config {
	return Config{
		Name:             DependencyAI,
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// DatabaseConfig returns the breaker configuration for the database
// dependency. More tolerant than AI: transient connection errors are
// common and cheap to retry.
func DatabaseConfig() Config {
	return Config{
		Name:             DependencyDatabase,
		FailureThreshold: 5,
		RecoveryTimeout:  10 * time.Second,
		SuccessThreshold: 2,
	}
}

// PaymentConfig returns the breaker configuration for the payment
// gateway dependency.
func PaymentConfig() Config {
	return Config{
		Name:             DependencyPayment,
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker guards one dependency. Construct one per dependency
// per process and inject it; never share instances across dependencies.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
	timeout time.Duration
}

// New creates a circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// MaxRequests is the probe budget in half-open; gobreaker
		// closes the circuit after this many consecutive successes.
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("dependency", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
		timeout: cfg.RecoveryTimeout,
	}
}

// Execute runs fn through the circuit breaker.
//
// While the circuit is open (or the half-open probe budget is spent)
// it returns an *UnavailableError without invoking fn. Otherwise fn
// runs and its outcome is recorded: a timeout counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	result, err := cb.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &UnavailableError{Dependency: cb.name, RetryAfter: cb.timeout}
	}
	return result, err
}

// Name returns the dependency name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// IsOpen returns true if the circuit is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// Counts returns the breaker's internal counters, for monitoring.
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}

// Registry holds the one breaker per dependency this process runs
// with. Constructed once at startup and passed down; no globals.
type Registry struct {
	AI       *CircuitBreaker
	Database *CircuitBreaker
	Payment  *CircuitBreaker
}

// NewRegistry builds a Registry from per-dependency configurations.
func NewRegistry(ai, database, payment Config) *Registry {
	return &Registry{
		AI:       New(ai),
		Database: New(database),
		Payment:  New(payment),
	}
}

// DefaultRegistry builds a Registry with the default per-dependency
// configurations.
func DefaultRegistry() *Registry {
	return NewRegistry(AIConfig(), DatabaseConfig(), PaymentConfig())
}
