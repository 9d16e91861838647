package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/models"
)

func newSettings(t *testing.T) *Settings {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))
	return NewSettings(db)
}

func TestSettingsPutAndLookup(t *testing.T) {
	settings := newSettings(t)
	ctx := context.Background()

	_, found, err := settings.Lookup(ctx, "theme")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, settings.Put(ctx, "theme", "dark"))
	require.NoError(t, settings.Put(ctx, "theme", "light"))

	value, found, err := settings.Lookup(ctx, "theme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "light", value)

	require.Error(t, settings.Put(ctx, " ", "x"))
}

func TestSettingsSwapReturnsPrevious(t *testing.T) {
	settings := newSettings(t)
	ctx := context.Background()

	previous, err := settings.Swap(ctx, NetCacheVersionKey, "v1")
	require.NoError(t, err)
	require.Empty(t, previous)

	previous, err = settings.Swap(ctx, NetCacheVersionKey, "v1")
	require.NoError(t, err)
	require.Equal(t, "v1", previous)

	previous, err = settings.Swap(ctx, NetCacheVersionKey, "v2")
	require.NoError(t, err)
	require.Equal(t, "v1", previous)

	value, _, err := settings.Lookup(ctx, NetCacheVersionKey)
	require.NoError(t, err)
	require.Equal(t, "v2", value)
}

func TestSettingsLookupBeforeMigration(t *testing.T) {
	settings := NewSettings(openTestDB(t))

	_, found, err := settings.Lookup(context.Background(), NetCacheVersionKey)
	require.NoError(t, err)
	require.False(t, found)
}
