package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestDefaultConfig_ScopeTable(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		scope       Scope
		wantWindow  time.Duration
		wantMaxReqs int
	}{
		{ScopeAuth, time.Minute, 10},
		{ScopeChatFree, time.Minute, 10},
		{ScopeChatPro, time.Minute, 60},
		{ScopePayment, time.Minute, 5},
		{ScopeAPI, time.Minute, 100},
		{ScopeUserAPI, time.Hour, 1000},
		{ScopeAdmin, time.Minute, 300},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			sc, ok := cfg.ScopeFor(tt.scope)
			if !ok {
				t.Fatalf("ScopeFor(%s) not configured", tt.scope)
			}
			if sc.Window != tt.wantWindow {
				t.Errorf("Window = %v, want %v", sc.Window, tt.wantWindow)
			}
			if sc.MaxRequests != tt.wantMaxReqs {
				t.Errorf("MaxRequests = %d, want %d", sc.MaxRequests, tt.wantMaxReqs)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "empty scopes",
			mutate:  func(c *Config) { c.Scopes = nil },
			wantErr: "scopes table is required",
		},
		{
			name:    "missing scope",
			mutate:  func(c *Config) { delete(c.Scopes, ScopePayment) },
			wantErr: "scope PAYMENT is not configured",
		},
		{
			name: "zero window",
			mutate: func(c *Config) {
				c.Scopes[ScopeAuth] = ScopeConfig{Window: 0, MaxRequests: 10}
			},
			wantErr: "window must be positive",
		},
		{
			name: "zero max requests",
			mutate: func(c *Config) {
				c.Scopes[ScopeAuth] = ScopeConfig{Window: time.Minute, MaxRequests: 0}
			},
			wantErr: "maxRequests must be positive",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.SuspicionThreshold = 1.5 },
			wantErr: "suspicionThreshold",
		},
		{
			name:    "penalty factor of one",
			mutate:  func(c *Config) { c.PenaltyFactor = 1 },
			wantErr: "penaltyFactor",
		},
		{
			name:    "zero penalty duration",
			mutate:  func(c *Config) { c.PenaltyDuration = 0 },
			wantErr: "penaltyDuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAllScopes_MatchesDefaultTable(t *testing.T) {
	cfg := DefaultConfig()
	for _, scope := range AllScopes() {
		if _, ok := cfg.ScopeFor(scope); !ok {
			t.Errorf("AllScopes() lists %s but DefaultConfig() does not configure it", scope)
		}
	}
	if len(AllScopes()) != len(cfg.Scopes) {
		t.Errorf("AllScopes() has %d entries, DefaultConfig() has %d", len(AllScopes()), len(cfg.Scopes))
	}
}
