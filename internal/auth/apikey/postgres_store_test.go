package apikey

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgresTest connects to the database named by TEST_DATABASE_URL,
// skipping when none is reachable. Unit coverage of the store's callers
// runs against the in-memory fake; this exercises the real SQL.
func setupPostgresTest(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set (this is fine for unit tests)")
	}

	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}

	store, err := NewPostgresStore(conn)
	require.NoError(t, err)
	return store
}

func insertTestKey(t *testing.T, store *PostgresStore, ownerID string) *APIKey {
	t.Helper()

	key := &APIKey{
		KeyID:      KeyIDPrefix + uuid.NewString(),
		SecretHash: "$2a$04$testhashtesthashtesthashte",
		Preview:    "cg-...abcd",
		OwnerID:    ownerID,
		Name:       "integration test key",
	}
	require.NoError(t, store.Insert(context.Background(), key))
	t.Cleanup(func() {
		_, _ = store.db.Exec("DELETE FROM api_keys WHERE key_id = $1", key.KeyID)
	})
	return key
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()
	ownerID := "it-" + uuid.NewString()

	key := insertTestKey(t, store, ownerID)

	t.Run("find active", func(t *testing.T) {
		found, err := store.FindActiveByKeyID(ctx, key.KeyID)
		require.NoError(t, err)
		assert.Equal(t, key.OwnerID, found.OwnerID)
		assert.False(t, found.Revoked)
	})

	t.Run("duplicate key id rejected", func(t *testing.T) {
		dup := *key
		err := store.Insert(ctx, &dup)
		assert.ErrorIs(t, err, ErrDuplicateKeyID)
	})

	t.Run("update last used", func(t *testing.T) {
		ts := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, store.UpdateLastUsed(ctx, key.KeyID, ts))
		found, err := store.FindActiveByKeyID(ctx, key.KeyID)
		require.NoError(t, err)
		require.NotNil(t, found.LastUsed)
		assert.WithinDuration(t, ts, *found.LastUsed, time.Second)
	})

	t.Run("rename", func(t *testing.T) {
		renamed, err := store.UpdateName(ctx, key.KeyID, ownerID, "renamed")
		require.NoError(t, err)
		assert.Equal(t, "renamed", renamed.Name)

		_, err = store.UpdateName(ctx, key.KeyID, "someone-else", "stolen")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("revoke", func(t *testing.T) {
		revoked, err := store.Revoke(ctx, key.KeyID, ownerID)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = store.Revoke(ctx, key.KeyID, ownerID)
		require.NoError(t, err)
		assert.False(t, revoked, "second revoke affects no rows")

		_, err = store.FindActiveByKeyID(ctx, key.KeyID)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestPostgresStoreRevokeAllAndList(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()
	ownerID := "it-" + uuid.NewString()

	first := insertTestKey(t, store, ownerID)
	second := insertTestKey(t, store, ownerID)

	keys, err := store.ListByOwner(ctx, ownerID, "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keyIDs, err := store.RevokeAllForOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.KeyID, second.KeyID}, keyIDs)

	keys, err = store.ListByOwner(ctx, ownerID, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
