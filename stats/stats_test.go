package stats

import (
	"context"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	col := NewCollector(db, c)
	col.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	empty, err := col.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, db.Create(&model.Account{Username: "a", UsernameKey: "a", Email: "a@x", EmailKey: "a@x", PasswordHash: "h"}).Error)
	pk := model.PairKey("a", "b")
	require.NoError(t, db.Create(&model.Friendship{Requester: "a", Requested: "b", RequesterKey: "a", RequestedKey: "b", Status: model.FriendPending, PendingKey: &pk}).Error)
	require.NoError(t, db.Create(&model.Friendship{Requester: "c", Requested: "a", RequesterKey: "c", RequestedKey: "a", Status: model.FriendAccepted}).Error)

	require.NoError(t, col.Snapshot(ctx))

	got, err := col.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"accounts":                "1",
		"friend_requests_pending": "1",
		"friendships":             "1",
		"groups":                  "0",
		"memberships":             "0",
		"invites":                 "0",
		"updated_at":              "2026-01-02T03:04:05Z",
	}, got)
}

func TestSnapshot_StorageFailure(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	c, _ := testutil.SetupTestCache(t)
	mock.ExpectQuery("SELECT count").WillReturnError(assert.AnError)

	err := NewCollector(db, c).Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count accounts")
}
