package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
)

// StoreStats holds row counts for the local store.
type StoreStats struct {
	SavedItems        int64 `json:"saved_items"`
	CachedListings    int64 `json:"cached_listings"`
	CacheEntries      int64 `json:"cache_entries"`
	Preferences       int64 `json:"preferences"`
	Favorites         int64 `json:"favorites"`
	UserActions       int64 `json:"user_actions"`
	PendingOperations int64 `json:"pending_operations"`
	StalledOperations int64 `json:"stalled_operations"`
	CachedResponses   int64 `json:"cached_responses"`
	PushNotifications int64 `json:"push_notifications"`
}

// StatsService reports storage statistics.
type StatsService struct {
	db *gorm.DB
}

// NewStatsService constructs a StatsService.
func NewStatsService(db *gorm.DB) (*StatsService, error) {
	if db == nil {
		return nil, errors.New("stats service: db is required")
	}
	return &StatsService{db: db}, nil
}

// Collect counts rows per table.
func (s *StatsService) Collect(ctx context.Context) (StoreStats, error) {
	ctx = ensureContext(ctx)
	var stats StoreStats

	counts := []struct {
		name  string
		model any
		scope func(*gorm.DB) *gorm.DB
		dest  *int64
	}{
		{"saved items", &models.SavedItem{}, nil, &stats.SavedItems},
		{"cached listings", &models.CachedListing{}, nil, &stats.CachedListings},
		{"cache entries", &models.KVEntry{}, nil, &stats.CacheEntries},
		{"preferences", &models.Preference{}, nil, &stats.Preferences},
		{"favorites", &models.Favorite{}, nil, &stats.Favorites},
		{"user actions", &models.UserAction{}, nil, &stats.UserActions},
		{"pending operations", &models.SyncOperation{}, func(db *gorm.DB) *gorm.DB {
			return db.Where("retry_count < ?", MaxSyncRetries)
		}, &stats.PendingOperations},
		{"stalled operations", &models.SyncOperation{}, func(db *gorm.DB) *gorm.DB {
			return db.Where("retry_count >= ?", MaxSyncRetries)
		}, &stats.StalledOperations},
		{"cached responses", &models.CachedResponse{}, nil, &stats.CachedResponses},
		{"push notifications", &models.PushNotification{}, nil, &stats.PushNotifications},
	}

	for _, c := range counts {
		query := s.db.WithContext(ctx).Model(c.model)
		if c.scope != nil {
			query = c.scope(query)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return StoreStats{}, fmt.Errorf("stats service: count %s: %w", c.name, err)
		}
	}
	return stats, nil
}
