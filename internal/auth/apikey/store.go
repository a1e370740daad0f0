package apikey

import (
	"context"
	"time"
)

// Store is the durable credential store. It is the source of truth for key
// verification; the Redis cache in front of it is an optimization only.
type Store interface {
	// Insert creates a new key record. Returns ErrDuplicateKeyID when the
	// key id collides with an existing record.
	Insert(ctx context.Context, key *APIKey) error

	// FindActiveByKeyID returns the active (non-revoked) record for a key
	// id, or ErrKeyNotFound. Revoked and never-existed keys are
	// indistinguishable through this method.
	FindActiveByKeyID(ctx context.Context, keyID string) (*APIKey, error)

	// UpdateLastUsed stamps the key's last successful verification
	UpdateLastUsed(ctx context.Context, keyID string, ts time.Time) error

	// UpdateName renames an active key owned by ownerID. Returns
	// ErrKeyNotFound when no active record matches.
	UpdateName(ctx context.Context, keyID, ownerID, name string) (*APIKey, error)

	// Revoke flips the revoked flag for an active key owned by ownerID.
	// Returns false when no active record matched; revoking an absent or
	// already-revoked key is not an error.
	Revoke(ctx context.Context, keyID, ownerID string) (bool, error)

	// RevokeAllForOwner flips the revoked flag for every active key owned
	// by ownerID and returns the affected key ids for cache invalidation.
	RevokeAllForOwner(ctx context.Context, ownerID string) ([]string, error)

	// ListByOwner returns the owner's non-revoked keys, optionally
	// filtered by a case-insensitive name substring.
	ListByOwner(ctx context.Context, ownerID, nameSearch string) ([]*APIKey, error)

	// Close releases store resources
	Close() error
}
