package offline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/database"
	"github.com/charlesng35/dealcache/internal/database/testutil"
	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/services"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

func newTestClient(t *testing.T, online bool) (*Client, *connectivity.Monitor) {
	t.Helper()
	db := testutil.NewDB(t)
	monitor := connectivity.NewMonitor(online)
	client := NewClient(WithDB(db), WithMonitor(monitor))
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client, monitor
}

func TestOperationsAwaitInitialisation(t *testing.T) {
	db := testutil.NewDB(t)
	client := NewClient(WithDB(db))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.SetPreference(context.Background(), "k", i)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, client.Init(context.Background()))
}

func TestInitFailureIsSticky(t *testing.T) {
	client := NewClient()
	err := client.Init(context.Background())
	require.Error(t, err)
	require.Equal(t, err, client.Init(context.Background()))

	_, err = client.ListSavedItems(context.Background(), "u1")
	require.ErrorIs(t, err, apperrors.ErrNotInitialised)
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	client, _ := newTestClient(t, true)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Stats(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotInitialised)
}

func TestClientOwnsConfiguredDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "dealcache.db")
	client := NewClient(WithDatabaseConfig(database.Config{Driver: "sqlite", Path: path}))
	require.NoError(t, client.Init(context.Background()))

	_, err := client.SaveItem(context.Background(), json.RawMessage(`{"id":"d1"}`), "u1")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	reopened := NewClient(WithDatabaseConfig(database.Config{Driver: "sqlite", Path: path}))
	t.Cleanup(func() { _ = reopened.Close() })
	saved, err := reopened.IsItemSaved(context.Background(), "d1", "u1")
	require.NoError(t, err)
	require.True(t, saved)
}

func TestSavedItemLifecycleThroughClient(t *testing.T) {
	client, monitor := newTestClient(t, false)
	ctx := context.Background()

	item, err := client.SaveItem(ctx, json.RawMessage(`{"id":"d1","title":"TV"}`), "u1")
	require.NoError(t, err)
	require.False(t, item.Synced)

	monitor.Set(true)
	item, err = client.SaveItem(ctx, json.RawMessage(`{"id":"d2"}`), "u1")
	require.NoError(t, err)
	require.True(t, item.Synced)

	unsynced, err := client.GetUnsyncedItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unsynced, 1)

	_, err = client.MarkItemsSynced(ctx, []string{"d1"})
	require.NoError(t, err)

	removed, err := client.RemoveSavedItem(ctx, "d1", "u1")
	require.NoError(t, err)
	require.True(t, removed)

	stalled, err := client.ListStalledOperations(ctx)
	require.NoError(t, err)
	require.Empty(t, stalled)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.SavedItems)
	require.Equal(t, int64(1), stats.PendingOperations)
}

func TestMobileOperationsThroughClient(t *testing.T) {
	client, _ := newTestClient(t, false)
	ctx := context.Background()

	_, err := client.CacheDeal(ctx, json.RawMessage(`{"id":"d1"}`))
	require.NoError(t, err)
	deals, err := client.GetCachedDeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deals, 1)

	_, created, err := client.AddFavoriteOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = client.AddFavoriteOffline(ctx, "d1", "u1")
	require.NoError(t, err)
	require.False(t, created)

	favorites, err := client.GetOfflineFavorites(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"d1"}, favorites)

	_, err = client.RecordAction(ctx, "click", "d1", "u1")
	require.NoError(t, err)

	op, err := client.EnqueueSyncOperation(ctx, models.SyncOperationUpdate, "/api/deals/d1", map[string]string{"title": "x"})
	require.NoError(t, err)
	require.Zero(t, op.RetryCount)

	removed, err := client.ClearOldCache(ctx, 30)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestAPICacheAndPreferencesThroughClient(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	db := testutil.NewDB(t)
	client := NewClient(WithDB(db), WithClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	_, err := client.CacheAPIResponse(ctx, "/api/deals", []byte(`{"deals":[]}`), 0)
	require.NoError(t, err)
	data, ok, err := client.GetCachedAPIResponse(ctx, "/api/deals")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"deals":[]}`, string(data))

	_, err = client.SetPreference(ctx, "currency", "EUR")
	require.NoError(t, err)
	pref, err := client.GetPreference(ctx, "currency")
	require.NoError(t, err)
	require.JSONEq(t, `"EUR"`, string(pref.Value))

	_, err = client.CacheListingBatch(ctx, []json.RawMessage{json.RawMessage(`{"id":"l1"}`)}, "tech")
	require.NoError(t, err)
	listings, err := client.GetCachedListings(ctx, "tech", 5)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	result, err := client.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, services.CleanupResult{}, result)
}

func TestPushThroughClient(t *testing.T) {
	client, _ := newTestClient(t, true)
	ctx := context.Background()

	dto, err := client.ReceivePush(ctx, services.PushPayload{UserID: "u1", DealID: "d9"})
	require.NoError(t, err)

	result, err := client.HandlePushAction(ctx, dto.ID, models.PushActionFavorite)
	require.NoError(t, err)
	require.Equal(t, "d9", result.Favorite.DealID)

	items, err := client.ListPush(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
}
