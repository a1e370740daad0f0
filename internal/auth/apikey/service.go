package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/metrics"
)

// maxCreateAttempts bounds key id collision retries at creation
const maxCreateAttempts = 5

// Service manages the API key lifecycle. Every mutation that can make a
// cached verification entry stale deletes that entry synchronously on the
// store's success path; a stale entry after revocation is a security
// defect, not a performance nuance.
type Service struct {
	store     Store
	redis     redis.UniversalClient
	hasher    *auth.SecretHasher
	generator *Generator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewService creates a key management service
func NewService(store Store, rdb redis.UniversalClient, hasher *auth.SecretHasher, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		redis:     rdb,
		hasher:    hasher,
		generator: NewGenerator(),
		logger:    logger,
		metrics:   m,
	}
}

// CreateResult carries the one-time plaintext credential and display data
type CreateResult struct {
	Credential string    `json:"api_key"` // plaintext, shown exactly once
	KeyID      string    `json:"key_id"`
	Preview    string    `json:"key_preview"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Create issues a new key for an owner, retrying on key id collision
func (s *Service) Create(ctx context.Context, ownerID, name string) (*CreateResult, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		keyID, secret, preview, err := s.generator.Generate()
		if err != nil {
			return nil, err
		}

		secretHash, err := s.hasher.Hash(secret)
		if err != nil {
			return nil, err
		}

		key := &APIKey{
			KeyID:      keyID,
			SecretHash: secretHash,
			Preview:    preview,
			OwnerID:    ownerID,
			Name:       name,
		}
		if err := s.store.Insert(ctx, key); err != nil {
			if errors.Is(err, ErrDuplicateKeyID) {
				continue
			}
			return nil, fmt.Errorf("%w: insert key: %v", auth.ErrStoreUnavailable, err)
		}

		return &CreateResult{
			Credential: keyID + CredentialSeparator + secret,
			KeyID:      keyID,
			Preview:    preview,
			Name:       name,
			CreatedAt:  key.CreatedAt,
		}, nil
	}
	return nil, errors.New("key id collision retries exhausted")
}

// Rename updates a key's display name and invalidates its cached entry
func (s *Service) Rename(ctx context.Context, keyID, ownerID, name string) (*APIKey, error) {
	key, err := s.store.UpdateName(ctx, keyID, ownerID, name)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, auth.ErrKeyNotFoundOrRevoked
		}
		return nil, fmt.Errorf("%w: update key: %v", auth.ErrStoreUnavailable, err)
	}

	if err := s.invalidate(ctx, keyID); err != nil {
		return nil, err
	}
	return key, nil
}

// Revoke permanently revokes one key. Revoking an absent or already-revoked
// key is a no-op. The cached entry is deleted even when no row transitioned,
// so a revoke raced by another revoker still leaves no stale cache behind.
func (s *Service) Revoke(ctx context.Context, keyID, ownerID string) error {
	revoked, err := s.store.Revoke(ctx, keyID, ownerID)
	if err != nil {
		return fmt.Errorf("%w: revoke key: %v", auth.ErrStoreUnavailable, err)
	}

	if err := s.invalidate(ctx, keyID); err != nil {
		return err
	}
	if revoked {
		s.metrics.RecordKeyRevoked(1)
		s.logger.Info("api key revoked", zap.String("key_id", keyID))
	}
	return nil
}

// RevokeAllForOwner revokes every active key of an owner in one conditional
// update and unlinks the matching cache entries, returning the number of
// keys actually transitioned.
func (s *Service) RevokeAllForOwner(ctx context.Context, ownerID string) (int, error) {
	keyIDs, err := s.store.RevokeAllForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all keys: %v", auth.ErrStoreUnavailable, err)
	}
	if len(keyIDs) == 0 {
		return 0, nil
	}

	cacheKeys := make([]string, len(keyIDs))
	for i, keyID := range keyIDs {
		cacheKeys[i] = CacheKeyPrefix + keyID
	}
	if err := s.redis.Unlink(ctx, cacheKeys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: invalidate cached keys: %v", auth.ErrStoreUnavailable, err)
	}

	s.metrics.RecordKeyRevoked(len(keyIDs))
	s.logger.Info("all api keys revoked for owner",
		zap.String("owner_id", ownerID),
		zap.Int("count", len(keyIDs)))
	return len(keyIDs), nil
}

// List returns the owner's active keys, optionally filtered by name
func (s *Service) List(ctx context.Context, ownerID, nameSearch string) ([]*APIKey, error) {
	keys, err := s.store.ListByOwner(ctx, ownerID, nameSearch)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %v", auth.ErrStoreUnavailable, err)
	}
	return keys, nil
}

// invalidate deletes a cached verification entry. A failure here is
// surfaced, not swallowed: the mutation already committed, and returning
// the error is the only way to keep "next verification re-checks durable
// state" honest.
func (s *Service) invalidate(ctx context.Context, keyID string) error {
	if err := s.redis.Del(ctx, CacheKeyPrefix+keyID).Err(); err != nil {
		return fmt.Errorf("%w: invalidate cached key: %v", auth.ErrStoreUnavailable, err)
	}
	return nil
}
