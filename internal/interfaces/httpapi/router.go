package httpapi

import "net/http"

// NewRouter wires every endpoint behind request-id, access-log and CORS middleware.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /subscribe", h.Subscribe)
	mux.HandleFunc("POST /unsubscribe", h.Unsubscribe)
	mux.HandleFunc("GET /subscriptions", h.ListSubscriptions)
	mux.HandleFunc("GET /ws", h.Stream)
	mux.HandleFunc("GET /healthz", h.Health)

	var handler http.Handler = mux
	handler = WithCORS(h.deps.CORSOrigin)(handler)
	handler = WithLogging(handler)
	handler = WithRequestID(handler)
	return handler
}
