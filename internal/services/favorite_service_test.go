package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/models"
)

func newFavoriteService(t *testing.T) (*FavoriteService, *SyncQueueService, *testClock) {
	t.Helper()
	db := openServiceDB(t)
	clock := newTestClock()
	queue := newQueue(t, db, clock)
	svc, err := NewFavoriteService(db, queue, clock.Now)
	require.NoError(t, err)
	return svc, queue, clock
}

func TestFavoriteAddOfflineIsInsertIfAbsent(t *testing.T) {
	svc, _, clock := newFavoriteService(t)
	ctx := context.Background()

	first, created, err := svc.AddOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, first.Synced)

	clock.Advance(time.Minute)
	again, created, err := svc.AddOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)

	_, created, err = svc.AddOffline(ctx, "d1", "u2")
	require.NoError(t, err)
	require.True(t, created)

	ids, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"d1"}, ids)

	_, _, err = svc.AddOffline(ctx, "", "u1")
	require.Error(t, err)
}

func TestFavoriteUnsyncedAndMarkSynced(t *testing.T) {
	svc, _, _ := newFavoriteService(t)
	ctx := context.Background()

	a, _, err := svc.AddOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	_, _, err = svc.AddOffline(ctx, "d2", "u1")
	require.NoError(t, err)

	updated, err := svc.MarkSynced(ctx, []uint{a.ID, a.ID, 9999})
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	rows, err := svc.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "d2", rows[0].DealID)
}

func TestFavoriteRemoveQueuesDeleteForSyncedRows(t *testing.T) {
	svc, queue, _ := newFavoriteService(t)
	ctx := context.Background()

	synced, _, err := svc.AddOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	_, err = svc.MarkSynced(ctx, []uint{synced.ID})
	require.NoError(t, err)
	_, _, err = svc.AddOffline(ctx, "d2", "u1")
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, "d2", "u1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = svc.Remove(ctx, "d1", "u1")
	require.NoError(t, err)
	require.True(t, removed)

	pending, err := queue.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.SyncOperationDelete, pending[0].OperationType)
	require.Equal(t, "/api/users/u1/favorites/d1", pending[0].Endpoint)

	removed, err = svc.Remove(ctx, "d1", "u1")
	require.NoError(t, err)
	require.False(t, removed)

	ids, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestFavoriteMarkDeliveredQueuesDeleteForRemovedRows(t *testing.T) {
	svc, queue, _ := newFavoriteService(t)
	ctx := context.Background()

	_, _, err := svc.AddOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	_, _, err = svc.AddOffline(ctx, "d2", "u1")
	require.NoError(t, err)
	pushed, err := svc.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pushed, 2)

	removed, err := svc.Remove(ctx, "d2", "u1")
	require.NoError(t, err)
	require.True(t, removed)

	marked, err := svc.MarkDelivered(ctx, pushed)
	require.NoError(t, err)
	require.Equal(t, int64(1), marked)

	rows, err := svc.Unsynced(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	pending, err := queue.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "/api/users/u1/favorites/d2", pending[0].Endpoint)
}
