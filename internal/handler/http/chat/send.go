// Package chat provides the HTTP handlers for chat messages.
package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chatguard/internal/handler/http/respond"
	chatUC "chatguard/internal/usecase/chat"
)

// maxPromptBytes bounds the request body so oversized prompts are
// rejected before reaching the AI provider.
const maxPromptBytes = 64 << 10

// SendHandler handles POST /v1/chat requests.
type SendHandler struct{ Svc *chatUC.Service }

// ServeHTTP decodes the message, runs the chat use case, and writes
// the reply. Circuit breaker and retry failures are translated into
// the shared error envelope.
func (h SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.JSON(w, http.StatusRequestEntityTooLarge,
				map[string]string{"error": "message too large"})
			return
		}
		respond.JSON(w, http.StatusBadRequest,
			map[string]string{"error": "invalid request body"})
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		respond.JSON(w, http.StatusBadRequest,
			map[string]string{"error": "conversation_id and message are required"})
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respond.JSON(w, http.StatusUnauthorized,
			map[string]string{"error": "authentication required"})
		return
	}

	out, err := h.Svc.Send(r.Context(), chatUC.SendInput{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Prompt:         req.Message,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]string{
		"conversation_id": req.ConversationID,
		"reply":           out.Reply,
	})
}
