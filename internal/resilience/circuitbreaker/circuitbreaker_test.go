package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

var errBoom = errors.New("boom")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_, _ = cb.Execute(func() (any, error) {
			return nil, errBoom
		})
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{Name: DependencyAI, FailureThreshold: 3, RecoveryTimeout: time.Minute})

	failN(cb, 2)
	if cb.IsOpen() {
		t.Fatal("circuit open after 2 failures, want closed")
	}

	failN(cb, 1)
	if !cb.IsOpen() {
		t.Fatal("circuit closed after 3 consecutive failures, want open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New(Config{Name: DependencyDatabase, FailureThreshold: 3, RecoveryTimeout: time.Minute})

	failN(cb, 2)
	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	failN(cb, 2)
	if cb.IsOpen() {
		t.Fatal("circuit open, want closed: success should reset the failure streak")
	}
}

func TestCircuitBreaker_OpenFailsFastWithoutInvoking(t *testing.T) {
	cb := New(Config{Name: DependencyAI, FailureThreshold: 3, RecoveryTimeout: time.Minute})
	failN(cb, 3)

	invoked := 0
	_, err := cb.Execute(func() (any, error) {
		invoked++
		return "ok", nil
	})

	if invoked != 0 {
		t.Errorf("fn invoked %d times while circuit open, want 0", invoked)
	}

	var unavail *UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want *UnavailableError", err)
	}
	if unavail.Dependency != DependencyAI {
		t.Errorf("Dependency = %q, want %q", unavail.Dependency, DependencyAI)
	}
	if unavail.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %s, want 1m", unavail.RetryAfter)
	}
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Error("errors.Is(err, ErrDependencyUnavailable) = false, want true")
	}
}

func TestCircuitBreaker_ExecuteReturnsResult(t *testing.T) {
	cb := New(AIConfig())

	result, err := cb.Execute(func() (any, error) { return "reply", nil })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "reply" {
		t.Errorf("result = %v, want %q", result, "reply")
	}
}

func TestCircuitBreaker_ExecutePassesThroughFnError(t *testing.T) {
	cb := New(DatabaseConfig())

	_, err := cb.Execute(func() (any, error) { return nil, errBoom })
	if !errors.Is(err, errBoom) {
		t.Errorf("error = %v, want errBoom", err)
	}
	if errors.Is(err, ErrDependencyUnavailable) {
		t.Error("a closed-circuit failure must not look like a fast-fail rejection")
	}
}

// gobreaker drives open->half-open transitions off wall time, so this
// test uses a short recovery timeout and real sleeps.
func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(Config{
		Name:             DependencyAI,
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	failN(cb, 2)
	if !cb.IsOpen() {
		t.Fatal("circuit should be open")
	}

	time.Sleep(70 * time.Millisecond)

	// Two consecutive probe successes close the circuit.
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (any, error) { return "ok", nil }); err != nil {
			t.Fatalf("probe %d error = %v", i+1, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed after probe successes", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{
		Name:             DependencyPayment,
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	failN(cb, 2)
	time.Sleep(70 * time.Millisecond)

	_, err := cb.Execute(func() (any, error) { return nil, errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("probe error = %v, want errBoom", err)
	}
	if !cb.IsOpen() {
		t.Error("failed probe should reopen the circuit")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	cb := New(Config{Name: "X"})

	// Default failure threshold is 5.
	failN(cb, 4)
	if cb.IsOpen() {
		t.Fatal("circuit open after 4 failures, want default threshold of 5")
	}
	failN(cb, 1)
	if !cb.IsOpen() {
		t.Fatal("circuit closed after 5 failures, want open")
	}

	var unavail *UnavailableError
	_, err := cb.Execute(func() (any, error) { return nil, nil })
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want *UnavailableError", err)
	}
	if unavail.RetryAfter != 30*time.Second {
		t.Errorf("default RetryAfter = %s, want 30s", unavail.RetryAfter)
	}
}

func TestDependencyConfigs(t *testing.T) {
	tests := []struct {
		name             string
		cfg              Config
		dependency       string
		failureThreshold uint32
		recoveryTimeout  time.Duration
	}{
		{name: "ai", cfg: AIConfig(), dependency: DependencyAI, failureThreshold: 3, recoveryTimeout: 30 * time.Second},
		{name: "database", cfg: DatabaseConfig(), dependency: DependencyDatabase, failureThreshold: 5, recoveryTimeout: 10 * time.Second},
		{name: "payment", cfg: PaymentConfig(), dependency: DependencyPayment, failureThreshold: 3, recoveryTimeout: 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Name != tt.dependency {
				t.Errorf("Name = %q, want %q", tt.cfg.Name, tt.dependency)
			}
			if tt.cfg.FailureThreshold != tt.failureThreshold {
				t.Errorf("FailureThreshold = %d, want %d", tt.cfg.FailureThreshold, tt.failureThreshold)
			}
			if tt.cfg.RecoveryTimeout != tt.recoveryTimeout {
				t.Errorf("RecoveryTimeout = %s, want %s", tt.cfg.RecoveryTimeout, tt.recoveryTimeout)
			}
			if tt.cfg.SuccessThreshold != 2 {
				t.Errorf("SuccessThreshold = %d, want 2", tt.cfg.SuccessThreshold)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	if reg.AI.Name() != DependencyAI {
		t.Errorf("AI breaker name = %q", reg.AI.Name())
	}
	if reg.Database.Name() != DependencyDatabase {
		t.Errorf("Database breaker name = %q", reg.Database.Name())
	}
	if reg.Payment.Name() != DependencyPayment {
		t.Errorf("Payment breaker name = %q", reg.Payment.Name())
	}
	for _, cb := range []*CircuitBreaker{reg.AI, reg.Database, reg.Payment} {
		if cb.State() != gobreaker.StateClosed {
			t.Errorf("%s initial state = %s, want closed", cb.Name(), cb.State())
		}
	}
}
