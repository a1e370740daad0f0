// Package apikey implements API key credentials: generation, durable
// storage, cached verification, and revocation.
package apikey

import (
	"errors"
	"time"
)

const (
	// KeyIDPrefix is the fixed, human-recognizable prefix of every key id.
	// It is distinct from secret material and safe to display or log.
	KeyIDPrefix = "cg-"

	// CredentialSeparator joins the key id and secret on the wire:
	// "<key_id>.<secret>". Only the first occurrence splits the parts.
	CredentialSeparator = "."

	// Header is the HTTP header carrying the credential
	Header = "X-API-Key"

	// CacheKeyPrefix prefixes cached verification entries in Redis
	CacheKeyPrefix = "apikey:"
)

var (
	// ErrKeyNotFound is returned by stores when no active record matches
	ErrKeyNotFound = errors.New("api key not found")

	// ErrDuplicateKeyID is returned on a key id collision at insert
	ErrDuplicateKeyID = errors.New("api key id already exists")
)

// APIKey is the durable credential record. The externally presented
// credential is key_id + "." + secret; only the hash of the secret half is
// ever persisted.
type APIKey struct {
	KeyID      string     `json:"key_id"`
	SecretHash string     `json:"-"` // never exposed
	Preview    string     `json:"key_preview"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	Revoked    bool       `json:"revoked"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Active reports whether the key can authenticate requests. Revocation is a
// one-way transition, never reversed.
func (k *APIKey) Active() bool {
	return !k.Revoked
}
