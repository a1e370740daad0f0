// Package token implements opaque session tokens mapped to user identities
// in Redis. Deleting a mapping revokes the token immediately; the token
// string itself stays guessable-looking but unusable.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/auth"
	"github.com/credgate/go-core/internal/metrics"
)

const (
	// KeyPrefix prefixes token-to-identity mappings in Redis
	KeyPrefix = "token:"

	// DefaultLifetime is the fixed token TTL
	DefaultLifetime = 7 * 24 * time.Hour

	// scanPageSize bounds each SCAN page so a bulk revoke never
	// monopolizes the store's command queue
	scanPageSize = 100

	tokenBytes = 32
)

// Service issues, resolves, and revokes session tokens
type Service struct {
	redis    redis.UniversalClient
	lifetime time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewService creates a token service
func NewService(rdb redis.UniversalClient, lifetime time.Duration, logger *zap.Logger, m *metrics.Metrics) *Service {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		redis:    rdb,
		lifetime: lifetime,
		logger:   logger,
		metrics:  m,
	}
}

// Issue creates a fresh opaque token for a user and reports when it expires
func (s *Service) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.redis.Set(ctx, KeyPrefix+tok, userID, s.lifetime).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: store token: %v", auth.ErrStoreUnavailable, err)
	}
	return tok, time.Now().Add(s.lifetime), nil
}

// Lookup resolves a token to its owning user. Unknown or revoked tokens
// fail with ErrInvalidCredential.
func (s *Service) Lookup(ctx context.Context, tok string) (string, error) {
	userID, err := s.redis.Get(ctx, KeyPrefix+tok).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrInvalidCredential
		}
		return "", fmt.Errorf("%w: lookup token: %v", auth.ErrStoreUnavailable, err)
	}
	return userID, nil
}

// Revoke deletes a single token mapping. Revoking an already-absent token
// is not an error.
func (s *Service) Revoke(ctx context.Context, tok string) error {
	deleted, err := s.redis.Del(ctx, KeyPrefix+tok).Result()
	if err != nil {
		return fmt.Errorf("%w: revoke token: %v", auth.ErrStoreUnavailable, err)
	}
	s.metrics.RecordTokenRevoked(int(deleted))
	return nil
}

// RevokeAllForUser deletes every token mapping whose value equals the
// target user id. There is no secondary index from user to tokens, so the
// keyspace under the token prefix is walked with a cursor-based,
// non-blocking scan in bounded pages; each page's values are bulk-fetched
// and string-compared. Matches are removed in one UNLINK at the end.
//
// The revoke is best-effort/eventual, not atomic: tokens created during
// the scan that the cursor has already passed may be missed.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	var (
		cursor uint64
		toDel  []string
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, KeyPrefix+"*", scanPageSize).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: scan tokens: %v", auth.ErrStoreUnavailable, err)
		}

		if len(keys) > 0 {
			vals, err := s.redis.MGet(ctx, keys...).Result()
			if err != nil {
				return 0, fmt.Errorf("%w: fetch token owners: %v", auth.ErrStoreUnavailable, err)
			}
			for i, val := range vals {
				owner, ok := val.(string)
				if ok && owner == userID {
					toDel = append(toDel, keys[i])
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(toDel) == 0 {
		return 0, nil
	}
	if err := s.redis.Unlink(ctx, toDel...).Err(); err != nil {
		return 0, fmt.Errorf("%w: unlink tokens: %v", auth.ErrStoreUnavailable, err)
	}

	s.metrics.RecordTokenRevoked(len(toDel))
	s.logger.Info("all session tokens revoked for user",
		zap.String("user_id", userID),
		zap.Int("count", len(toDel)))
	return len(toDel), nil
}
