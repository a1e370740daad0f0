// Package routes registers the versioned REST API
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/credgate/go-core/internal/api/handlers"
)

// Register mounts the v1 API onto the router. The admission gate is
// applied by the server around the whole router, so nothing here deals
// with identity resolution or rate limiting.
func Register(router *mux.Router, keys *handlers.KeysHandler, sessions *handlers.SessionsHandler) {
	v1 := router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/apikeys", keys.Create).Methods(http.MethodPost)
	v1.HandleFunc("/apikeys", keys.List).Methods(http.MethodGet)
	v1.HandleFunc("/apikeys", keys.RevokeAll).Methods(http.MethodDelete)
	v1.HandleFunc("/apikeys/{key_id}", keys.Rename).Methods(http.MethodPatch)
	v1.HandleFunc("/apikeys/{key_id}", keys.Revoke).Methods(http.MethodDelete)

	v1.HandleFunc("/auth/sessions", sessions.Issue).Methods(http.MethodPost)
	v1.HandleFunc("/auth/sessions", sessions.RevokeAll).Methods(http.MethodDelete)
	v1.HandleFunc("/auth/logout", sessions.Logout).Methods(http.MethodPost)
}
