// Package middleware provides the per-request admission gate: identity
// resolution combined with dual-window rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/auth/apikey"
	"github.com/credgate/go-core/internal/auth/token"
)

// Resolver is one identity-resolution variant. Resolve reports ok=false
// when the resolver's credential is absent from the request, letting the
// gate fall through to the next variant; an error means the credential was
// present but did not verify.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (auth.Identity, bool, error)
}

// APIKeyResolver resolves the X-API-Key header through the verifier
type APIKeyResolver struct {
	verifier *apikey.Verifier
}

// NewAPIKeyResolver creates an API key resolver
func NewAPIKeyResolver(verifier *apikey.Verifier) *APIKeyResolver {
	return &APIKeyResolver{verifier: verifier}
}

// Resolve verifies the presented API key credential
func (res *APIKeyResolver) Resolve(ctx context.Context, r *http.Request) (auth.Identity, bool, error) {
	credential := r.Header.Get(apikey.Header)
	if credential == "" {
		return auth.Identity{}, false, nil
	}
	identity, err := res.verifier.Verify(ctx, credential)
	return identity, true, err
}

// SessionTokenResolver resolves a bearer session token via the token store
type SessionTokenResolver struct {
	tokens *token.Service
}

// NewSessionTokenResolver creates a session token resolver
func NewSessionTokenResolver(tokens *token.Service) *SessionTokenResolver {
	return &SessionTokenResolver{tokens: tokens}
}

// Resolve looks up the bearer token's owning user
func (res *SessionTokenResolver) Resolve(ctx context.Context, r *http.Request) (auth.Identity, bool, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Identity{}, false, nil
	}
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tok == "" {
		return auth.Identity{}, false, nil
	}

	userID, err := res.tokens.Lookup(ctx, tok)
	if err != nil {
		return auth.Identity{}, true, err
	}
	return auth.User(userID), true, nil
}

// ClientIP returns the caller's address: the first X-Forwarded-For entry
// when present (load balancer / gateway in front), else the transport-level
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
