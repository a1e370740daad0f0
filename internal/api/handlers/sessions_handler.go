package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/auth/token"
)

// SessionsHandler handles session token issuance and revocation
type SessionsHandler struct {
	tokens *token.Service
	logger *zap.Logger
}

// NewSessionsHandler creates a session handler
func NewSessionsHandler(tokens *token.Service, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{tokens: tokens, logger: logger}
}

// IssueSessionRequest is the request body for session issuance. The caller
// is the upstream login flow, which has already authenticated the user.
type IssueSessionRequest struct {
	UserID string `json:"user_id"`
}

// IssueSessionResponse carries the opaque bearer token
type IssueSessionResponse struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokeAllSessionsResponse reports how many sessions were revoked
type RevokeAllSessionsResponse struct {
	Revoked int `json:"revoked"`
}

// Issue handles POST /v1/auth/sessions
func (h *SessionsHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	tok, expiresAt, err := h.tokens.Issue(r.Context(), req.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, IssueSessionResponse{
		Token:     tok,
		TokenType: "bearer",
		ExpiresAt: expiresAt,
	})
}

// Logout handles POST /v1/auth/logout, revoking the presented bearer token.
// Revocation is idempotent: a missing or already-revoked token still logs
// the caller out.
func (h *SessionsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tok := bearerToken(r)
	if tok == "" {
		respondError(w, http.StatusBadRequest, "bearer token required")
		return
	}

	if err := h.tokens.Revoke(r.Context(), tok); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll handles DELETE /v1/auth/sessions, revoking every live session
// of the calling user. The sweep is best effort: sessions issued while it
// runs may survive.
func (h *SessionsHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.tokens.RevokeAllForUser(r.Context(), identity.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RevokeAllSessionsResponse{Revoked: count})
}

func (h *SessionsHandler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrStoreUnavailable) {
		h.logger.Error("session store unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	h.logger.Error("session operation failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return tok
}
