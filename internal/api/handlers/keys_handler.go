// Package handlers provides HTTP handlers for the credential REST API
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/auth/apikey"
	"github.com/credgate/go-core/internal/server/middleware"
)

// KeysHandler handles API key management endpoints
type KeysHandler struct {
	keys   *apikey.Service
	logger *zap.Logger
}

// NewKeysHandler creates a new key management handler
func NewKeysHandler(keys *apikey.Service, logger *zap.Logger) *KeysHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeysHandler{keys: keys, logger: logger}
}

// CreateKeyRequest is the request body for key creation
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// RenameKeyRequest is the request body for key rename
type RenameKeyRequest struct {
	Name string `json:"name"`
}

// ListKeysResponse lists an owner's active keys
type ListKeysResponse struct {
	Keys  []*apikey.APIKey `json:"keys"`
	Count int              `json:"count"`
}

// RevokeAllResponse reports how many keys transitioned to revoked
type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// Create handles POST /v1/apikeys. The plaintext credential appears only
// in this response and is never recoverable afterwards.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := h.keys.Create(r.Context(), identity.UserID, req.Name)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// List handles GET /v1/apikeys?search=<name>
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.List(r.Context(), identity.UserID, r.URL.Query().Get("search"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ListKeysResponse{Keys: keys, Count: len(keys)})
}

// Rename handles PATCH /v1/apikeys/{key_id}
func (h *KeysHandler) Rename(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req RenameKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	keyID := mux.Vars(r)["key_id"]
	key, err := h.keys.Rename(r.Context(), keyID, identity.UserID, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFoundOrRevoked) {
			respondError(w, http.StatusNotFound, "api key not found")
			return
		}
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, key)
}

// Revoke handles DELETE /v1/apikeys/{key_id}. Revocation is permanent and
// idempotent: revoking an absent or already-revoked key succeeds quietly.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	keyID := mux.Vars(r)["key_id"]
	if err := h.keys.Revoke(r.Context(), keyID, identity.UserID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll handles DELETE /v1/apikeys
func (h *KeysHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.keys.RevokeAllForOwner(r.Context(), identity.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RevokeAllResponse{Revoked: count})
}

func (h *KeysHandler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrStoreUnavailable) {
		h.logger.Error("credential store unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	h.logger.Error("key management operation failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

// requireUser extracts the authenticated identity resolved by the
// admission gate, rejecting anonymous callers.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok || !identity.Authenticated() {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return identity, true
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
