package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed key store
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Insert creates a new key record.
// Security: key.SecretHash must already contain the bcrypt hash of the
// secret half; the plaintext secret is never persisted.
func (s *PostgresStore) Insert(ctx context.Context, key *APIKey) error {
	if key == nil {
		return errors.New("api key is nil")
	}
	if key.SecretHash == "" {
		return errors.New("secret_hash is required (must be a hash, never plaintext)")
	}

	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	if key.UpdatedAt.IsZero() {
		key.UpdatedAt = now
	}

	query := `
		INSERT INTO api_keys (
			key_id, secret_hash, preview, owner_id, name,
			revoked, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, false, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.KeyID, key.SecretHash, key.Preview, key.OwnerID, key.Name,
		key.CreatedAt, key.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKeyID
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// FindActiveByKeyID returns the active record for a key id
func (s *PostgresStore) FindActiveByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	query := `
		SELECT key_id, secret_hash, preview, owner_id, name,
		       revoked, last_used, created_at, updated_at
		FROM api_keys
		WHERE key_id = $1 AND revoked = false
	`

	key := &APIKey{}
	err := s.db.QueryRowContext(ctx, query, keyID).Scan(
		&key.KeyID, &key.SecretHash, &key.Preview, &key.OwnerID, &key.Name,
		&key.Revoked, &key.LastUsed, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("query api key: %w", err)
	}
	return key, nil
}

// UpdateLastUsed stamps the key's last successful verification
func (s *PostgresStore) UpdateLastUsed(ctx context.Context, keyID string, ts time.Time) error {
	query := `UPDATE api_keys SET last_used = $2 WHERE key_id = $1`
	if _, err := s.db.ExecContext(ctx, query, keyID, ts.UTC()); err != nil {
		return fmt.Errorf("update last_used: %w", err)
	}
	return nil
}

// UpdateName renames an active key owned by ownerID
func (s *PostgresStore) UpdateName(ctx context.Context, keyID, ownerID, name string) (*APIKey, error) {
	query := `
		UPDATE api_keys
		SET name = $3, updated_at = $4
		WHERE key_id = $1 AND owner_id = $2 AND revoked = false
		RETURNING key_id, secret_hash, preview, owner_id, name,
		          revoked, last_used, created_at, updated_at
	`

	key := &APIKey{}
	err := s.db.QueryRowContext(ctx, query, keyID, ownerID, name, time.Now().UTC()).Scan(
		&key.KeyID, &key.SecretHash, &key.Preview, &key.OwnerID, &key.Name,
		&key.Revoked, &key.LastUsed, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("update api key name: %w", err)
	}
	return key, nil
}

// Revoke flips the revoked flag for an active key owned by ownerID
func (s *PostgresStore) Revoke(ctx context.Context, keyID, ownerID string) (bool, error) {
	query := `
		UPDATE api_keys
		SET revoked = true, updated_at = $3
		WHERE key_id = $1 AND owner_id = $2 AND revoked = false
	`

	res, err := s.db.ExecContext(ctx, query, keyID, ownerID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke api key: rows affected: %w", err)
	}
	return affected > 0, nil
}

// RevokeAllForOwner revokes every active key owned by ownerID in a single
// conditional update, returning the affected key ids so the caller can
// invalidate the matching cache entries in the same logical operation.
func (s *PostgresStore) RevokeAllForOwner(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		UPDATE api_keys
		SET revoked = true, updated_at = $2
		WHERE owner_id = $1 AND revoked = false
		RETURNING key_id
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("revoke all api keys: %w", err)
	}
	defer rows.Close()

	var keyIDs []string
	for rows.Next() {
		var keyID string
		if err := rows.Scan(&keyID); err != nil {
			return nil, fmt.Errorf("scan revoked key id: %w", err)
		}
		keyIDs = append(keyIDs, keyID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked key ids: %w", err)
	}
	return keyIDs, nil
}

// ListByOwner returns the owner's non-revoked keys, newest first
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID, nameSearch string) ([]*APIKey, error) {
	query := `
		SELECT key_id, secret_hash, preview, owner_id, name,
		       revoked, last_used, created_at, updated_at
		FROM api_keys
		WHERE owner_id = $1 AND revoked = false
	`
	args := []interface{}{ownerID}

	if nameSearch != "" {
		query += ` AND name ILIKE $2`
		args = append(args, "%"+nameSearch+"%")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key := &APIKey{}
		if err := rows.Scan(
			&key.KeyID, &key.SecretHash, &key.Preview, &key.OwnerID, &key.Name,
			&key.Revoked, &key.LastUsed, &key.CreatedAt, &key.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation checks for PostgreSQL unique constraint violations
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
