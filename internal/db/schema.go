// Package db provides the Postgres connection, schema constants, and
// migration management.
package db

// Table names as constants for type safety
const (
	TableAPIKeys = "api_keys"
)

// Column names for compile-time checking
const (
	ColKeyID      = "key_id"
	ColSecretHash = "secret_hash"
	ColPreview    = "preview"
	ColOwnerID    = "owner_id"
	ColName       = "name"
	ColRevoked    = "revoked"
	ColLastUsed   = "last_used"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
)
