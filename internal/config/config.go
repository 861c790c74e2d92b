// Package config defines the typed configuration for the resilience
// layer and loads it from an optional YAML file with environment
// variable overrides.
//
// Every recognized option is an explicit struct field; unknown YAML
// keys are rejected at load time so typos surface immediately instead
// of silently falling back to defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chatguard/internal/quota"
	"chatguard/internal/resilience/circuitbreaker"
	pkgconfig "chatguard/pkg/config"
	"chatguard/pkg/ratelimit"
)

// DependencyConfig holds circuit breaker settings for one dependency.
type DependencyConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit.
	FailureThreshold uint32 `yaml:"failureThreshold"`

	// RecoveryTimeout is how long the circuit stays open before a
	// probe is allowed.
	RecoveryTimeout time.Duration `yaml:"recoveryTimeout"`

	// SuccessThreshold is the consecutive half-open successes needed
	// to close the circuit.
	SuccessThreshold uint32 `yaml:"successThreshold"`
}

// RedisConfig holds the shared store connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis-compatible store. Empty means
	// "use the in-process memory store" (single-instance/dev mode).
	Addr string `yaml:"addr"`

	// Password is the store password, usually injected via REDIS_PASSWORD.
	Password string `yaml:"password"`

	// DB is the logical database number.
	DB int `yaml:"db"`

	// KeyPrefix namespaces all keys, for shared environments.
	KeyPrefix string `yaml:"keyPrefix"`

	// Timeout bounds every store call. Store timeouts fail open.
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the root configuration for the resilience layer.
type Config struct {
	// RateLimit is the per-scope limiter table and penalty parameters.
	RateLimit *ratelimit.Config `yaml:"rateLimit"`

	// Dependencies maps dependency names (AI, DATABASE, PAYMENT) to
	// breaker settings.
	Dependencies map[string]DependencyConfig `yaml:"dependencies"`

	// UTCOffsetMinutes is the tenant day-boundary offset. 330 = IST.
	UTCOffsetMinutes int `yaml:"utcOffsetMinutes"`

	// TierLimits maps subscription tiers to daily message limits
	// (negative = unlimited).
	TierLimits map[string]int64 `yaml:"tierLimits"`

	// UsageRetention is how long per-day usage counters are kept.
	UsageRetention time.Duration `yaml:"usageRetention"`

	// CacheTTL is the default cache entry TTL.
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// Redis is the shared store connection.
	Redis RedisConfig `yaml:"redis"`
}

// Default returns the built-in configuration: the default scope table,
// per-dependency breaker thresholds (AI 3, DATABASE 5, PAYMENT 3),
// IST day boundary, free tier at 20 messages/day.
func Default() *Config {
	return &Config{
		RateLimit: ratelimit.DefaultConfig(),
		Dependencies: map[string]DependencyConfig{
			circuitbreaker.DependencyAI: {
				FailureThreshold: 3,
				RecoveryTimeout:  30 * time.Second,
				SuccessThreshold: 2,
			},
			circuitbreaker.DependencyDatabase: {
				FailureThreshold: 5,
				RecoveryTimeout:  10 * time.Second,
				SuccessThreshold: 2,
			},
			circuitbreaker.DependencyPayment: {
				FailureThreshold: 3,
				RecoveryTimeout:  60 * time.Second,
				SuccessThreshold: 2,
			},
		},
		UTCOffsetMinutes: 330,
		TierLimits: map[string]int64{
			string(quota.TierFree):    20,
			string(quota.TierPro):     quota.Unlimited,
			string(quota.TierPremium): quota.Unlimited,
		},
		UsageRetention: 90 * 24 * time.Hour,
		CacheTTL:       5 * time.Minute,
		Redis: RedisConfig{
			Addr:    pkgconfig.GetEnvString("REDIS_ADDR", ""),
			Timeout: 2 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CHATGUARD_CONFIG (if set), then environment overrides, then
// validation.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CHATGUARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile merges the YAML file at path over the current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's own env
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies the environment variables that override
// file and default values.
func (c *Config) applyEnvOverrides() {
	c.Redis.Addr = pkgconfig.GetEnvString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = pkgconfig.GetEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = pkgconfig.GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.KeyPrefix = pkgconfig.GetEnvString("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	c.Redis.Timeout = pkgconfig.GetEnvDuration("REDIS_TIMEOUT", c.Redis.Timeout)

	c.UTCOffsetMinutes = pkgconfig.GetEnvInt("TENANT_UTC_OFFSET_MINUTES", c.UTCOffsetMinutes)
	c.UsageRetention = pkgconfig.GetEnvDuration("USAGE_RETENTION", c.UsageRetention)
	c.CacheTTL = pkgconfig.GetEnvDuration("CACHE_TTL", c.CacheTTL)
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.RateLimit == nil {
		return fmt.Errorf("rateLimit section is required")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}

	for _, name := range []string{
		circuitbreaker.DependencyAI,
		circuitbreaker.DependencyDatabase,
		circuitbreaker.DependencyPayment,
	} {
		dep, ok := c.Dependencies[name]
		if !ok {
			return fmt.Errorf("dependency %s is not configured", name)
		}
		if dep.FailureThreshold == 0 {
			return fmt.Errorf("dependency %s: failureThreshold must be positive", name)
		}
		if dep.RecoveryTimeout <= 0 {
			return fmt.Errorf("dependency %s: recoveryTimeout must be positive", name)
		}
		if dep.SuccessThreshold == 0 {
			return fmt.Errorf("dependency %s: successThreshold must be positive", name)
		}
	}

	// Offsets beyond a day are always a unit mistake (hours vs minutes).
	if c.UTCOffsetMinutes <= -24*60 || c.UTCOffsetMinutes >= 24*60 {
		return fmt.Errorf("utcOffsetMinutes out of range: %d", c.UTCOffsetMinutes)
	}
	if len(c.TierLimits) == 0 {
		return fmt.Errorf("tierLimits table is required")
	}
	if c.UsageRetention <= 0 {
		return fmt.Errorf("usageRetention must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cacheTTL must be positive")
	}
	if c.Redis.Timeout <= 0 {
		return fmt.Errorf("redis.timeout must be positive")
	}
	return nil
}

// BreakerConfig converts the dependency entry for name into the
// circuit breaker package's config type.
func (c *Config) BreakerConfig(name string) circuitbreaker.Config {
	dep := c.Dependencies[name]
	return circuitbreaker.Config{
		Name:             name,
		FailureThreshold: dep.FailureThreshold,
		RecoveryTimeout:  dep.RecoveryTimeout,
		SuccessThreshold: dep.SuccessThreshold,
	}
}

// QuotaTiers converts the tier table into the quota package's type.
func (c *Config) QuotaTiers() quota.TierLimits {
	tiers := make(quota.TierLimits, len(c.TierLimits))
	for name, limit := range c.TierLimits {
		tiers[quota.Tier(name)] = limit
	}
	return tiers
}
