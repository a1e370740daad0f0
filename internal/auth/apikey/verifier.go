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

const (
	// DefaultLifetime is the TTL of a cached verification entry, equal to
	// the configured credential lifetime
	DefaultLifetime = time.Hour

	// DefaultRefreshBelow is the low-water mark: an entry accessed with
	// less remaining TTL than this gets its TTL extended (sliding refresh)
	// instead of lapsing into re-verification near expiry.
	DefaultRefreshBelow = time.Minute

	cacheOwnerField = "owner_id"
)

// VerifierConfig holds verifier tuning knobs
type VerifierConfig struct {
	Lifetime     time.Duration
	RefreshBelow time.Duration
}

// Verifier resolves a presented credential string to the owning identity,
// using Redis as a fast path and the credential store as the source of
// truth, writing through to the cache on miss.
//
// Two concurrent first-time verifications of the same key may both take the
// slow path; verification is idempotent so the duplicate work is accepted
// rather than introducing a cross-process lock.
type Verifier struct {
	store        Store
	redis        redis.UniversalClient
	hasher       *auth.SecretHasher
	lifetime     time.Duration
	refreshBelow time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewVerifier creates a verifier
func NewVerifier(store Store, rdb redis.UniversalClient, hasher *auth.SecretHasher, cfg VerifierConfig, logger *zap.Logger, m *metrics.Metrics) *Verifier {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.RefreshBelow <= 0 {
		cfg.RefreshBelow = DefaultRefreshBelow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		store:        store,
		redis:        rdb,
		hasher:       hasher,
		lifetime:     cfg.Lifetime,
		refreshBelow: cfg.RefreshBelow,
		logger:       logger,
		metrics:      m,
	}
}

// Verify resolves a credential to the owning identity or a definitive
// rejection. Unknown, revoked, and secret-mismatched credentials all fail
// with ErrInvalidCredential so key existence never leaks.
func (v *Verifier) Verify(ctx context.Context, credential string) (auth.Identity, error) {
	keyID, secret, err := SplitCredential(credential)
	if err != nil {
		return auth.Identity{}, err
	}

	if identity, ok := v.fastPath(ctx, keyID); ok {
		v.metrics.RecordCacheHit()
		return identity, nil
	}
	v.metrics.RecordCacheMiss()

	return v.slowPath(ctx, keyID, secret)
}

// fastPath checks the cache, extending the TTL near expiry so hot keys do
// not stampede the credential store when their entries are about to lapse.
// Any cache error degrades to a miss; the store stays authoritative.
func (v *Verifier) fastPath(ctx context.Context, keyID string) (auth.Identity, bool) {
	cacheKey := CacheKeyPrefix + keyID

	ttl, err := v.redis.TTL(ctx, cacheKey).Result()
	if err != nil {
		v.logger.Warn("verification cache unreachable, falling back to store",
			zap.Error(err))
		return auth.Identity{}, false
	}
	if ttl <= 0 {
		return auth.Identity{}, false
	}

	if ttl < v.refreshBelow {
		if err := v.redis.Expire(ctx, cacheKey, v.lifetime).Err(); err != nil {
			v.logger.Warn("sliding ttl refresh failed", zap.Error(err))
		}
	}

	entry, err := v.redis.HGetAll(ctx, cacheKey).Result()
	if err != nil || len(entry) == 0 {
		return auth.Identity{}, false
	}
	ownerID, ok := entry[cacheOwnerField]
	if !ok || ownerID == "" {
		return auth.Identity{}, false
	}
	return auth.User(ownerID), true
}

// slowPath verifies against the credential store and writes through to the
// cache. The last_used stamp and the cache write are best-effort; failing
// to verify fails the request, failing to cache does not.
func (v *Verifier) slowPath(ctx context.Context, keyID, secret string) (auth.Identity, error) {
	key, err := v.store.FindActiveByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return auth.Identity{}, auth.ErrInvalidCredential
		}
		return auth.Identity{}, fmt.Errorf("%w: find active key: %v", auth.ErrStoreUnavailable, err)
	}

	if !v.hasher.Verify(secret, key.SecretHash) {
		return auth.Identity{}, auth.ErrInvalidCredential
	}

	now := time.Now().UTC()
	if err := v.store.UpdateLastUsed(ctx, keyID, now); err != nil {
		v.logger.Warn("update last_used failed", zap.Error(err))
	}

	cacheKey := CacheKeyPrefix + keyID
	if err := v.redis.HSet(ctx, cacheKey, cacheOwnerField, key.OwnerID).Err(); err != nil {
		v.logger.Warn("verification cache write failed", zap.Error(err))
	} else if err := v.redis.Expire(ctx, cacheKey, v.lifetime).Err(); err != nil {
		v.logger.Warn("verification cache expire failed", zap.Error(err))
	}

	return auth.User(key.OwnerID), nil
}
