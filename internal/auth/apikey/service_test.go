package apikey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/credgate/go-core/internal/auth"
)

// collidingStore rejects the first n inserts with ErrDuplicateKeyID
type collidingStore struct {
	*fakeStore
	collisions int
}

func (c *collidingStore) Insert(ctx context.Context, key *APIKey) error {
	if c.collisions > 0 {
		c.collisions--
		return ErrDuplicateKeyID
	}
	return c.fakeStore.Insert(ctx, key)
}

func setupServiceTest(t *testing.T) (*Service, *fakeStore, *miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:             s.Addr(),
		DisableIndentity: true,
	})
	t.Cleanup(func() { client.Close() })

	store := newFakeStore()
	hasher := auth.NewSecretHasherWithCost(bcrypt.MinCost)
	service := NewService(store, client, hasher, nil, nil)

	return service, store, s, client
}

func TestServiceCreate(t *testing.T) {
	service, store, _, _ := setupServiceTest(t)
	ctx := context.Background()

	result, err := service.Create(ctx, "user-1", "ci pipeline")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Credential, KeyIDPrefix))
	assert.Contains(t, result.Credential, CredentialSeparator)
	assert.Equal(t, "ci pipeline", result.Name)

	t.Run("stored record never holds the plaintext secret", func(t *testing.T) {
		_, secret, err := SplitCredential(result.Credential)
		require.NoError(t, err)

		stored, err := store.FindActiveByKeyID(ctx, result.KeyID)
		require.NoError(t, err)
		assert.NotEqual(t, secret, stored.SecretHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte(secret)))
	})
}

func TestServiceCreateRetriesOnCollision(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), DisableIndentity: true})
	t.Cleanup(func() { client.Close() })

	store := &collidingStore{fakeStore: newFakeStore(), collisions: 2}
	hasher := auth.NewSecretHasherWithCost(bcrypt.MinCost)
	service := NewService(store, client, hasher, nil, nil)

	result, err := service.Create(context.Background(), "user-1", "retry test")
	require.NoError(t, err)
	assert.NotEmpty(t, result.KeyID)
}

func TestServiceCreateCollisionsExhausted(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), DisableIndentity: true})
	t.Cleanup(func() { client.Close() })

	store := &collidingStore{fakeStore: newFakeStore(), collisions: maxCreateAttempts}
	hasher := auth.NewSecretHasherWithCost(bcrypt.MinCost)
	service := NewService(store, client, hasher, nil, nil)

	_, err := service.Create(context.Background(), "user-1", "doomed")
	assert.Error(t, err)
}

func TestServiceRename(t *testing.T) {
	service, _, s, client := setupServiceTest(t)
	ctx := context.Background()

	result, err := service.Create(ctx, "user-1", "old name")
	require.NoError(t, err)

	// Warm the cache entry so rename has something to invalidate
	require.NoError(t, client.HSet(ctx, CacheKeyPrefix+result.KeyID, "owner_id", "user-1").Err())

	key, err := service.Rename(ctx, result.KeyID, "user-1", "new name")
	require.NoError(t, err)
	assert.Equal(t, "new name", key.Name)
	assert.False(t, s.Exists(CacheKeyPrefix+result.KeyID))

	t.Run("unknown key id", func(t *testing.T) {
		_, err := service.Rename(ctx, "cg-missing", "user-1", "name")
		assert.ErrorIs(t, err, auth.ErrKeyNotFoundOrRevoked)
	})

	t.Run("wrong owner", func(t *testing.T) {
		_, err := service.Rename(ctx, result.KeyID, "user-2", "name")
		assert.ErrorIs(t, err, auth.ErrKeyNotFoundOrRevoked)
	})
}

func TestServiceRevoke(t *testing.T) {
	service, store, s, client := setupServiceTest(t)
	ctx := context.Background()

	result, err := service.Create(ctx, "user-1", "to revoke")
	require.NoError(t, err)
	require.NoError(t, client.HSet(ctx, CacheKeyPrefix+result.KeyID, "owner_id", "user-1").Err())

	require.NoError(t, service.Revoke(ctx, result.KeyID, "user-1"))
	assert.False(t, s.Exists(CacheKeyPrefix+result.KeyID), "cache entry must be gone")

	_, err = store.FindActiveByKeyID(ctx, result.KeyID)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	t.Run("second revoke is a no-op", func(t *testing.T) {
		assert.NoError(t, service.Revoke(ctx, result.KeyID, "user-1"))
	})

	t.Run("revoking an unknown key succeeds quietly", func(t *testing.T) {
		assert.NoError(t, service.Revoke(ctx, "cg-never-existed", "user-1"))
	})
}

func TestServiceRevokeSurfacesCacheFailure(t *testing.T) {
	service, _, s, _ := setupServiceTest(t)
	ctx := context.Background()

	result, err := service.Create(ctx, "user-1", "key")
	require.NoError(t, err)

	s.SetError("cache down")
	defer s.SetError("")

	err = service.Revoke(ctx, result.KeyID, "user-1")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

func TestServiceRevokeAllForOwner(t *testing.T) {
	service, _, s, client := setupServiceTest(t)
	ctx := context.Background()

	var keyIDs []string
	for i := 0; i < 3; i++ {
		result, err := service.Create(ctx, "user-1", "key")
		require.NoError(t, err)
		keyIDs = append(keyIDs, result.KeyID)
		require.NoError(t, client.HSet(ctx, CacheKeyPrefix+result.KeyID, "owner_id", "user-1").Err())
	}
	other, err := service.Create(ctx, "user-2", "other")
	require.NoError(t, err)
	require.NoError(t, client.HSet(ctx, CacheKeyPrefix+other.KeyID, "owner_id", "user-2").Err())

	count, err := service.RevokeAllForOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, keyID := range keyIDs {
		assert.False(t, s.Exists(CacheKeyPrefix+keyID))
	}
	assert.True(t, s.Exists(CacheKeyPrefix+other.KeyID), "other owner's cache entry survives")

	t.Run("empty owner revokes nothing", func(t *testing.T) {
		count, err := service.RevokeAllForOwner(ctx, "user-1")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestServiceList(t *testing.T) {
	service, _, _, _ := setupServiceTest(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		_, err := service.Create(ctx, "user-1", name)
		require.NoError(t, err)
	}

	keys, err := service.List(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	t.Run("revoked keys drop out", func(t *testing.T) {
		require.NoError(t, service.Revoke(ctx, keys[0].KeyID, "user-1"))
		remaining, err := service.List(ctx, "user-1", "")
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
	})
}

func TestServiceCreatedAtPopulated(t *testing.T) {
	service, _, _, _ := setupServiceTest(t)

	result, err := service.Create(context.Background(), "user-1", "key")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), result.CreatedAt, time.Minute)
}
