package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tickcast/internal/application/port"
	"tickcast/internal/application/service"
	"tickcast/internal/application/usecase/broadcast"
	ws "tickcast/internal/infrastructure/websocket"
)

const (
	msgInvalidTicker = "Invalid request or ticker."
	msgInvalidToken  = "Invalid or unknown token."
	maxBodyBytes     = 1 << 16
)

// Authenticator is the login collaborator.
type Authenticator interface {
	Login(ctx context.Context, email string) (*service.LoginResult, error)
}

type Deps struct {
	Users         Authenticator
	Tokens        port.TokenValidator
	Subscriptions *broadcast.Subscriptions
	Connections   *broadcast.Connections
	CORSOrigin    string
}

type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{deps: deps}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// tokenValue accepts the token either as a JSON number or a string.
type tokenValue string

func (t *tokenValue) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*t = tokenValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = tokenValue(s)
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` // accepted, never checked
}

type loginResponse struct {
	Token         int64    `json:"token"`
	Subscriptions []string `json:"subscriptions"`
	Name          string   `json:"name"`
}

type tickerRequest struct {
	Token  tokenValue `json:"token"`
	Ticker string     `json:"ticker"`
}

type subscriptionsResponse struct {
	Success       bool     `json:"success"`
	Subscriptions []string `json:"subscriptions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request.", err)
		return
	}

	res, err := h.deps.Users.Login(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrEmptyEmail) {
			writeError(w, http.StatusBadRequest, "Invalid request.", err)
			return
		}
		log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "Login failed.", nil)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:         res.User.ID,
		Subscriptions: res.Subscriptions,
		Name:          res.User.Name,
	})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.deps.Subscriptions.Subscribe)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.deps.Subscriptions.Unsubscribe)
}

func (h *Handler) changeSubscription(w http.ResponseWriter, r *http.Request, apply func(int64, string) ([]string, error)) {
	var req tickerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidTicker, err)
		return
	}

	userID, ok := h.authenticate(w, r, string(req.Token))
	if !ok {
		return
	}

	subs, err := apply(userID, req.Ticker)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidTicker, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionsResponse{Success: true, Subscriptions: subs})
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, subscriptionsResponse{Success: true, Subscriptions: h.deps.Subscriptions.Get(userID)})
}

// Stream upgrades to a websocket and registers it as the user's push
// connection. The handler blocks until the connection goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	// reject before the handshake so an unknown peer never gets a socket
	if _, ok := h.authenticate(w, r, token); !ok {
		log.Warn().Str("remote", r.RemoteAddr).Msg("unauthenticated connection attempt, rejecting handshake")
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)

	userID, err := h.deps.Connections.Register(r.Context(), token, conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("unauthenticated connection attempt, disconnecting")
		return
	}
	log.Info().
		Int64("user_id", userID).
		Str("conn", conn.ID()).
		Int("active", h.deps.Connections.Len()).
		Msg("user connected")

	err = conn.ReadLoop(r.Context())

	if h.deps.Connections.Unregister(userID, conn) {
		log.Info().
			Err(err).
			Int64("user_id", userID).
			Str("conn", conn.ID()).
			Int("active", h.deps.Connections.Len()).
			Msg("user disconnected")
	}
	_ = conn.Close()
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.deps.Connections.Len(),
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, token string) (int64, bool) {
	userID, err := h.deps.Tokens.Validate(r.Context(), token)
	if err == nil {
		return userID, true
	}
	if errors.Is(err, port.ErrInvalidToken) || errors.Is(err, port.ErrUnknownUser) {
		writeError(w, http.StatusUnauthorized, msgInvalidToken, err)
		return 0, false
	}
	log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("token validation failed")
	writeError(w, http.StatusInternalServerError, "Token validation failed.", nil)
	return 0, false
}

// checkOrigin admits non-browser clients and the configured frontend.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.deps.CORSOrigin == "" || h.deps.CORSOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, h.deps.CORSOrigin) || sameHost(origin, r.Host)
}

func sameHost(origin, host string) bool {
	i := strings.Index(origin, "://")
	return i >= 0 && strings.EqualFold(origin[i+3:], host)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
