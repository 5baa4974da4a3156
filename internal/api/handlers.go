// Package api exposes the session and context endpoints of the coach context
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/coachcontext/internal/auth"
	"example.com/coachcontext/internal/cache"
	"example.com/coachcontext/internal/domain"
	"example.com/coachcontext/internal/session"
)

// ClientIDHeader names the device that owns a session. Requests without it use
// the token subject as the client key.
const ClientIDHeader = "X-Client-ID"

const defaultWaitTimeout = 30 * time.Second

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithWaitTimeout bounds how long ensure and refresh requests wait for an
// aggregation before answering 504. The aggregation itself keeps running.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.waitTimeout = timeout
		}
	}
}

// Handler coordinates HTTP requests with the session bridge and the per-client
// caches.
type Handler struct {
	bridge      *session.Bridge
	registry    *cache.Registry
	waitTimeout time.Duration
}

// NewHandler builds a Handler.
func NewHandler(bridge *session.Bridge, registry *cache.Registry, opts ...Option) *Handler {
	h := &Handler{bridge: bridge, registry: registry, waitTimeout: defaultWaitTimeout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/sessions/profile", h.sessionProfile)
	mux.HandleFunc("/v1/context", h.contextState)
	mux.HandleFunc("/v1/context/ensure", h.ensureContext)
	mux.HandleFunc("/v1/context/refresh", h.refreshContext)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r)
	case http.MethodDelete:
		h.endSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	var attrs *domain.ProfileAttributes
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	} else if err == nil {
		converted := req.toDomain()
		attrs = &converted
	}

	clientID := clientKey(r, claims)
	if err := h.bridge.Claim(clientID, claims.Subject, attrs); err != nil {
		if errors.Is(err, cache.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "forbidden", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	state := h.registry.Get(clientID).State()
	writeJSON(w, http.StatusAccepted, SessionResponse{
		ClientID:  clientID,
		UserID:    state.UserID,
		Status:    string(state.Status),
		RequestID: state.RequestID,
	})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	clientID := clientKey(r, claims)
	if _, ok := h.ownedCache(w, clientID, claims); !ok {
		return
	}
	h.bridge.SignedOut(clientID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.bridge.ProfileChanged(clientKey(r, claims), claims.Subject, req.toDomain()); err != nil {
		writeSnapshotError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) contextState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeContextRead)
	if !ok {
		return
	}

	clientID := clientKey(r, claims)
	state := cache.State{Status: cache.StatusEmpty}
	if c, ok := h.registry.Lookup(clientID); ok {
		state = c.State()
	}
	if state.UserID != "" && state.UserID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", cache.ErrNotOwner.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStateView(clientID, state))
}

func (h *Handler) ensureContext(w http.ResponseWriter, r *http.Request) {
	h.waitForSnapshot(w, r, auth.ScopeContextRead, (*cache.Cache).LoadAs)
}

func (h *Handler) refreshContext(w http.ResponseWriter, r *http.Request) {
	h.waitForSnapshot(w, r, auth.ScopeContextRefresh, (*cache.Cache).ReloadAs)
}

// waitForSnapshot leaves the ownership check to start, which runs it under the
// cache lock together with the load decision.
func (h *Handler) waitForSnapshot(w http.ResponseWriter, r *http.Request, scope string, start func(*cache.Cache, string) *cache.Future) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, scope)
	if !ok {
		return
	}

	c, ok := h.registry.Lookup(clientKey(r, claims))
	if !ok {
		writeError(w, http.StatusConflict, "no_session", cache.ErrNoSession.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	snapshot, err := start(c, claims.Subject).Wait(ctx)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// ownedCache resolves the cache of clientID and checks that the caller is the
// signed-in user. It writes the error response itself.
func (h *Handler) ownedCache(w http.ResponseWriter, clientID string, claims *auth.Claims) (*cache.Cache, bool) {
	c, ok := h.registry.Lookup(clientID)
	if !ok {
		writeError(w, http.StatusConflict, "no_session", cache.ErrNoSession.Error())
		return nil, false
	}
	switch owner := c.State().UserID; owner {
	case "":
		writeError(w, http.StatusConflict, "no_session", cache.ErrNoSession.Error())
		return nil, false
	case claims.Subject:
		return c, true
	default:
		writeError(w, http.StatusForbidden, "forbidden", cache.ErrNotOwner.Error())
		return nil, false
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func clientKey(r *http.Request, claims *auth.Claims) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	return claims.Subject
}

func writeSnapshotError(w http.ResponseWriter, err error) {
	var aggErr *domain.AggregationError
	switch {
	case errors.Is(err, cache.ErrNoSession), errors.Is(err, cache.ErrSessionEnded):
		writeError(w, http.StatusConflict, "no_session", err.Error())
	case errors.Is(err, cache.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &aggErr):
		resp := AggregationErrorResponse{
			Type:     "aggregation_failed",
			Detail:   aggErr.Error(),
			Failures: make([]SourceFailureView, 0, len(aggErr.Failures)),
		}
		for _, f := range aggErr.Failures {
			resp.Failures = append(resp.Failures, SourceFailureView{Source: string(f.Source), Error: f.Err.Error()})
		}
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "aggregation still in progress")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
