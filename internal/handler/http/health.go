// Package http provides HTTP handlers and middleware for the service.
// It includes the chat and usage endpoints, health checks, metrics
// collection, and the request protection middleware.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatguard/internal/resilience/circuitbreaker"
	"chatguard/pkg/ratelimit"

	"github.com/sony/gobreaker"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // ISO 8601 format
	Checks    map[string]CheckStatus `json:"checks"`    // Status of each check item
	Version   string                 `json:"version"`   // Application version
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string                 `json:"status"`            // "healthy" or "unhealthy"
	Message string                 `json:"message,omitempty"` // Optional status message
	Details map[string]interface{} `json:"details,omitempty"` // Optional additional details
}

// Pinger checks shared store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoint requests.
// It checks shared store connectivity and reports circuit breaker and
// store guard state for operational monitoring.
type HealthHandler struct {
	Store    Pinger
	Guard    *ratelimit.StoreGuard
	Breakers *circuitbreaker.Registry
	Version  string
}

// ServeHTTP performs health checks and returns the application health status.
// An unreachable shared store is reported as degraded, not unhealthy,
// because every layer fails open without it. Returns 503 only when the
// process itself cannot serve.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	status := "healthy"

	if h.Store != nil {
		check := CheckStatus{Status: "healthy"}
		if err := h.Store.Ping(ctx); err != nil {
			check = CheckStatus{
				Status:  "degraded",
				Message: "shared store unreachable, protections failing open",
			}
			status = "degraded"
		}
		if h.Guard != nil {
			check.Details = map[string]interface{}{
				"guard_state": h.Guard.State().String(),
			}
		}
		checks["shared_store"] = check
	}

	if h.Breakers != nil {
		for _, cb := range []*circuitbreaker.CircuitBreaker{
			h.Breakers.AI, h.Breakers.Database, h.Breakers.Payment,
		} {
			check := CheckStatus{Status: "healthy"}
			if cb.State() != gobreaker.StateClosed {
				check = CheckStatus{
					Status:  "degraded",
					Message: "circuit " + cb.State().String(),
				}
				status = "degraded"
			}
			checks["breaker_"+cb.Name()] = check
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "encode health response", http.StatusInternalServerError)
	}
}
