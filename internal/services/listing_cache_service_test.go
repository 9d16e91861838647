package services

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
)

func newListingService(t *testing.T) (*ListingCacheService, *testClock, *gorm.DB) {
	t.Helper()
	db := openServiceDB(t)
	clock := newTestClock()
	svc, err := NewListingCacheService(db, clock.Now)
	require.NoError(t, err)
	return svc, clock, db
}

func rawItems(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}

func TestListingCacheBatchStoresAndLists(t *testing.T) {
	svc, clock, _ := newListingService(t)
	ctx := context.Background()

	stored, err := svc.CacheBatch(ctx, rawItems(`{"id":"1"}`, `{"id":"2"}`), "tech")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, clock.Now(), stored[0].LastAccessed)

	clock.Advance(time.Minute)
	_, err = svc.CacheBatch(ctx, rawItems(`{"id":"3"}`), "home")
	require.NoError(t, err)

	all, err := svc.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "3", all[0].ID)

	tech, err := svc.List(ctx, "tech", 1)
	require.NoError(t, err)
	require.Len(t, tech, 1)
	require.Equal(t, "tech", tech[0].Category)
}

func TestListingCacheBatchIsAllOrNothing(t *testing.T) {
	svc, _, db := newListingService(t)
	ctx := context.Background()

	_, err := svc.CacheBatch(ctx, rawItems(`{"id":"1"}`, `{"title":"missing id"}`), "tech")
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.CachedListing{}).Count(&count).Error)
	require.Zero(t, count)

	stored, err := svc.CacheBatch(ctx, nil, "tech")
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestListingCacheSkipsMalformedRows(t *testing.T) {
	svc, clock, db := newListingService(t)
	ctx := context.Background()

	_, err := svc.CacheBatch(ctx, rawItems(`{"id":"good"}`), "tech")
	require.NoError(t, err)

	later := clock.Now().Add(time.Minute)
	require.NoError(t, db.Exec(
		"INSERT INTO cached_listings (id, category, payload, cached_at, last_accessed, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"bad", "tech", "{not json", later, later, later,
	).Error)

	listings, err := svc.List(ctx, "tech", 10)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "good", listings[0].ID)

	deals, err := svc.CachedDeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, "good", deals[0].ID)

	// the malformed row sorts first; a page of one still returns the valid row behind it
	listings, err = svc.List(ctx, "tech", 1)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "good", listings[0].ID)

	deals, err = svc.CachedDeals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, "good", deals[0].ID)
}

func TestListingCachePruneKeepsMostRecentlyAccessed(t *testing.T) {
	svc, clock, _ := newListingService(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := svc.CacheBatch(ctx, rawItems(`{"id":"`+id+`"}`), "")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	removed, err := svc.Prune(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	left, err := svc.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	require.Equal(t, "d", left[0].ID)
	require.Equal(t, "c", left[1].ID)

	removed, err = svc.Prune(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestCacheDealKeepsCategory(t *testing.T) {
	svc, clock, _ := newListingService(t)
	ctx := context.Background()

	_, err := svc.CacheBatch(ctx, rawItems(`{"id":"1","price":10}`), "tech")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	deal, err := svc.CacheDeal(ctx, []byte(`{"id":"1","price":7}`))
	require.NoError(t, err)
	require.Equal(t, clock.Now(), deal.UpdatedAt)

	tech, err := svc.List(ctx, "tech", 10)
	require.NoError(t, err)
	require.Len(t, tech, 1)
	require.JSONEq(t, `{"id":"1","price":7}`, string(tech[0].Payload))
}

func TestCachedDealsNewestFirstAndClearOld(t *testing.T) {
	svc, clock, _ := newListingService(t)
	ctx := context.Background()

	_, err := svc.CacheDeal(ctx, []byte(`{"id":"old"}`))
	require.NoError(t, err)
	clock.Advance(10 * 24 * time.Hour)
	_, err = svc.CacheDeal(ctx, []byte(`{"id":"new"}`))
	require.NoError(t, err)

	deals, err := svc.CachedDeals(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, []string{deals[0].ID, deals[1].ID})

	removed, err := svc.ClearOlderThan(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	deals, err = svc.CachedDeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, "new", deals[0].ID)

	_, err = svc.ClearOlderThan(ctx, -1)
	require.Error(t, err)
}
