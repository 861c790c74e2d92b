package ratelimit

import (
	"fmt"
	"time"
)

// Scope identifies a rate limit scope. Each scope has its own window
// size and request limit; an identifier's counters are independent
// across scopes.
type Scope string

// Recognized scopes. Every inbound surface of the chat product maps to
// exactly one of these.
const (
	ScopeAuth     Scope = "AUTH"
	ScopeChatFree Scope = "CHAT_FREE"
	ScopeChatPro  Scope = "CHAT_PRO"
	ScopePayment  Scope = "PAYMENT"
	ScopeAPI      Scope = "API"
	ScopeUserAPI  Scope = "USER_API"
	ScopeAdmin    Scope = "ADMIN"
)

// AllScopes lists every recognized scope, in a stable order.
func AllScopes() []Scope {
	return []Scope{
		ScopeAuth, ScopeChatFree, ScopeChatPro, ScopePayment,
		ScopeAPI, ScopeUserAPI, ScopeAdmin,
	}
}

// ScopeConfig holds the fixed-window parameters for one scope.
type ScopeConfig struct {
	// Window is the fixed window duration.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the number of requests allowed per window.
	MaxRequests int `yaml:"maxRequests"`
}

// Config holds the limiter configuration: the per-scope table plus the
// adaptive penalty parameters.
type Config struct {
	// Scopes maps each recognized scope to its window parameters.
	Scopes map[Scope]ScopeConfig `yaml:"scopes"`

	// SuspicionThreshold is the usage ratio at or above which an
	// identifier receives a penalty record. Range (0, 1].
	SuspicionThreshold float64 `yaml:"suspicionThreshold"`

	// PenaltyFactor is the multiplier applied to the configured limit
	// while a penalty is active. Range (0, 1).
	PenaltyFactor float64 `yaml:"penaltyFactor"`

	// PenaltyDuration is how long a penalty record lives.
	PenaltyDuration time.Duration `yaml:"penaltyDuration"`
}

// DefaultConfig returns the default limiter configuration.
//
// The numbers are tuned for abuse prevention, not fairness: tight
// windows on authentication and payment, generous ones on
// authenticated API traffic.
func DefaultConfig() *Config {
	return &Config{
		Scopes: map[Scope]ScopeConfig{
			ScopeAuth:     {Window: time.Minute, MaxRequests: 10},
			ScopeChatFree: {Window: time.Minute, MaxRequests: 10},
			ScopeChatPro:  {Window: time.Minute, MaxRequests: 60},
			ScopePayment:  {Window: time.Minute, MaxRequests: 5},
			ScopeAPI:      {Window: time.Minute, MaxRequests: 100},
			ScopeUserAPI:  {Window: time.Hour, MaxRequests: 1000},
			ScopeAdmin:    {Window: time.Minute, MaxRequests: 300},
		},
		SuspicionThreshold: 0.8,
		PenaltyFactor:      0.5,
		PenaltyDuration:    5 * time.Minute,
	}
}

// Validate checks that every recognized scope is configured and that
// all parameters are in range.
func (c *Config) Validate() error {
	if len(c.Scopes) == 0 {
		return fmt.Errorf("scopes table is required")
	}
	for _, scope := range AllScopes() {
		sc, ok := c.Scopes[scope]
		if !ok {
			return fmt.Errorf("scope %s is not configured", scope)
		}
		if sc.Window <= 0 {
			return fmt.Errorf("scope %s: window must be positive, got %s", scope, sc.Window)
		}
		if sc.MaxRequests <= 0 {
			return fmt.Errorf("scope %s: maxRequests must be positive, got %d", scope, sc.MaxRequests)
		}
	}
	if c.SuspicionThreshold <= 0 || c.SuspicionThreshold > 1 {
		return fmt.Errorf("suspicionThreshold must be in (0, 1], got %v", c.SuspicionThreshold)
	}
	if c.PenaltyFactor <= 0 || c.PenaltyFactor >= 1 {
		return fmt.Errorf("penaltyFactor must be in (0, 1), got %v", c.PenaltyFactor)
	}
	if c.PenaltyDuration <= 0 {
		return fmt.Errorf("penaltyDuration must be positive, got %s", c.PenaltyDuration)
	}
	return nil
}

// ScopeFor returns the configuration for scope.
// The second return value is false for unrecognized scopes.
func (c *Config) ScopeFor(scope Scope) (ScopeConfig, bool) {
	sc, ok := c.Scopes[scope]
	return sc, ok
}
