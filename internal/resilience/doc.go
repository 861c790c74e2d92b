// Package resilience provides the fault tolerance patterns guarding
// calls to expensive or fragile downstream dependencies: per-dependency
// circuit breakers and retry with exponential backoff.
//
// Each dependency (AI inference, database, payment gateway) gets its
// own breaker instance so a failing AI provider never blocks database
// writes. Breaker state is per process and never persisted: a fleet of
// N processes trips and recovers independently, trading fleet-wide
// synchronization for simplicity.
//
// Usage:
//
//	breakers := circuitbreaker.NewRegistry(cfg)
//	result, err := breakers.AI.Execute(func() (any, error) {
//	    return callModel(ctx, prompt)
//	})
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return performOperation()
//	})
package resilience
