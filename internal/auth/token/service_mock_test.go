package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credgate/go-core/internal/auth"
)

// Command-level assertions on the bulk revoke: the keyspace walk must use
// cursor-based SCAN in bounded pages and remove matches in one UNLINK.

func TestRevokeAllForUserCommandSequence(t *testing.T) {
	client, mock := redismock.NewClientMock()
	service := NewService(client, time.Hour, nil, nil)

	mock.ExpectScan(0, KeyPrefix+"*", scanPageSize).SetVal([]string{"token:a", "token:b"}, 7)
	mock.ExpectMGet("token:a", "token:b").SetVal([]interface{}{"user-1", "user-2"})
	mock.ExpectScan(7, KeyPrefix+"*", scanPageSize).SetVal([]string{"token:c"}, 0)
	mock.ExpectMGet("token:c").SetVal([]interface{}{"user-1"})
	mock.ExpectUnlink("token:a", "token:c").SetVal(2)

	count, err := service.RevokeAllForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUserEmptyPage(t *testing.T) {
	client, mock := redismock.NewClientMock()
	service := NewService(client, time.Hour, nil, nil)

	// A page with no keys must not trigger an MGET of nothing
	mock.ExpectScan(0, KeyPrefix+"*", scanPageSize).SetVal([]string{}, 3)
	mock.ExpectScan(3, KeyPrefix+"*", scanPageSize).SetVal([]string{"token:a"}, 0)
	mock.ExpectMGet("token:a").SetVal([]interface{}{"someone-else"})

	count, err := service.RevokeAllForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, count, "no matches means no UNLINK at all")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUserScanFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	service := NewService(client, time.Hour, nil, nil)

	mock.ExpectScan(0, KeyPrefix+"*", scanPageSize).SetErr(errors.New("connection reset"))

	_, err := service.RevokeAllForUser(context.Background(), "user-1")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}
