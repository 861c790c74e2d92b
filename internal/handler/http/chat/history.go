package chat

import (
	"net/http"

	"chatguard/internal/handler/http/respond"
	chatUC "chatguard/internal/usecase/chat"
)

// HistoryHandler handles GET /v1/conversations/{id}/messages requests.
type HistoryHandler struct{ Svc *chatUC.Service }

// ServeHTTP returns the conversation transcript, cache-first.
func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		respond.JSON(w, http.StatusBadRequest,
			map[string]string{"error": "conversation id is required"})
		return
	}

	msgs, err := h.Svc.History(r.Context(), conversationID)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        msgs,
	})
}
