package chat

import (
	"net/http"

	"chatguard/internal/handler/http/middleware"
	chatUC "chatguard/internal/usecase/chat"
)

// Register registers the chat HTTP handlers with the given mux.
// Both routes run behind the protection decorator: the send route under
// the tier-dependent chat scope with the daily quota gate, the history
// route under the API scope without it (reads do not consume quota).
func Register(mux *http.ServeMux, svc *chatUC.Service, send, read *middleware.Decorator) {
	mux.Handle("POST /v1/chat", send.Wrap(SendHandler{Svc: svc}))
	mux.Handle("GET /v1/conversations/{id}/messages", read.Wrap(HistoryHandler{Svc: svc}))
}
