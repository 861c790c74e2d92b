// Package usage provides the HTTP handlers for daily usage status.
package usage

import (
	"net/http"

	"chatguard/internal/handler/http/middleware"
	"chatguard/internal/handler/http/respond"
	"chatguard/internal/quota"
)

// StatusHandler handles GET /v1/usage/{user_id} requests.
// Clients poll it to render usage meters and upgrade prompts.
type StatusHandler struct {
	Tracker *quota.Tracker
	Tier    middleware.TierFunc
}

// ServeHTTP reports the caller's usage for the current tenant day.
// Callers may only read their own usage.
func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		respond.JSON(w, http.StatusBadRequest,
			map[string]string{"error": "user id is required"})
		return
	}
	if caller := r.Header.Get("X-User-ID"); caller != userID {
		respond.JSON(w, http.StatusForbidden,
			map[string]string{"error": "cannot read another user's usage"})
		return
	}

	// On store errors Status degrades to a permissive answer; serve it
	// anyway so clients keep working during an outage.
	status, _ := h.Tracker.Status(r.Context(), userID, h.Tier(r))
	respond.JSON(w, http.StatusOK, status)
}

// Register registers the usage HTTP handlers with the given mux.
func Register(mux *http.ServeMux, tracker *quota.Tracker, deco *middleware.Decorator, tier middleware.TierFunc) {
	mux.Handle("GET /v1/usage/{user_id}", deco.Wrap(StatusHandler{Tracker: tracker, Tier: tier}))
}
