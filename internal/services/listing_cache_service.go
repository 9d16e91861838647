package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/models"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/logger"
)

const (
	// DefaultListingRetention is how many listings Cleanup keeps, by recency of access.
	DefaultListingRetention = 200
	// DefaultListingLimit applies when callers do not pass a limit.
	DefaultListingLimit = 50
)

// ListingCacheService is the read-through cache of deal listings and individually cached deals.
type ListingCacheService struct {
	db  *gorm.DB
	now Clock
	log *zap.Logger
}

// NewListingCacheService constructs a ListingCacheService.
func NewListingCacheService(db *gorm.DB, clock Clock) (*ListingCacheService, error) {
	if db == nil {
		return nil, errors.New("listing cache service: db is required")
	}
	return &ListingCacheService{db: db, now: utcClock(clock), log: logger.WithModule("listings")}, nil
}

// CacheBatch upserts every listing in one transaction, stamping cached_at and last_accessed.
// Either the whole batch is stored or none of it is.
func (s *ListingCacheService) CacheBatch(ctx context.Context, items []json.RawMessage, category string) ([]models.CachedListing, error) {
	ctx = ensureContext(ctx)
	if len(items) == 0 {
		return []models.CachedListing{}, nil
	}
	category = strings.TrimSpace(category)

	now := s.now()
	rows := make([]models.CachedListing, 0, len(items))
	for i, raw := range items {
		id, err := recordID(raw)
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("listing %d: %s", i, apperrors.FromError(err).Message))
		}
		data, err := validJSON(raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.CachedListing{
			ID:           id,
			Category:     category,
			Payload:      data,
			CachedAt:     now,
			LastAccessed: now,
			UpdatedAt:    now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"category", "payload", "cached_at", "last_accessed", "updated_at"}),
			}).Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("listing %s: %w", rows[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing cache service: cache batch: %w", err)
	}
	return rows, nil
}

// List returns listings ordered by last access, newest first. Rows whose payload no longer
// parses are skipped.
func (s *ListingCacheService) List(ctx context.Context, category string, limit int) ([]models.CachedListing, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultListingLimit
	}

	query := s.db.WithContext(ctx).Model(&models.CachedListing{})
	if category = strings.TrimSpace(category); category != "" {
		query = query.Where("category = ?", category)
	}

	rows, err := s.wellFormedPage(query.Order("last_accessed DESC").Order("id ASC"), limit)
	if err != nil {
		return nil, fmt.Errorf("listing cache service: list: %w", err)
	}
	return rows, nil
}

// Prune keeps the keep most recently accessed listings and deletes the rest.
func (s *ListingCacheService) Prune(ctx context.Context, keep int) (int64, error) {
	ctx = ensureContext(ctx)
	if keep < 0 {
		keep = 0
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.CachedListing{}).
			Order("last_accessed DESC").
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		stale := ids[keep:]
		result := tx.Where("id IN ?", stale).Delete(&models.CachedListing{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("listing cache service: prune: %w", err)
	}
	return removed, nil
}

// CacheDeal upserts a single deal, keeping any category it was cached under.
func (s *ListingCacheService) CacheDeal(ctx context.Context, payload []byte) (*models.CachedListing, error) {
	ctx = ensureContext(ctx)
	id, err := recordID(payload)
	if err != nil {
		return nil, err
	}
	data, err := validJSON(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := models.CachedListing{
		ID:           id,
		Payload:      data,
		CachedAt:     now,
		LastAccessed: now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "cached_at", "last_accessed", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("listing cache service: cache deal %s: %w", id, err)
	}
	return &row, nil
}

// CachedDeals returns up to limit deals, most recently updated first, skipping malformed rows.
func (s *ListingCacheService) CachedDeals(ctx context.Context, limit int) ([]models.CachedListing, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultListingLimit
	}

	rows, err := s.wellFormedPage(s.db.WithContext(ctx).Order("updated_at DESC").Order("id ASC"), limit)
	if err != nil {
		return nil, fmt.Errorf("listing cache service: cached deals: %w", err)
	}
	return rows, nil
}

// ClearOlderThan deletes deals last updated more than days ago.
func (s *ListingCacheService) ClearOlderThan(ctx context.Context, days int) (int64, error) {
	ctx = ensureContext(ctx)
	if days < 0 {
		return 0, apperrors.NewBadRequest("days must not be negative")
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	result := s.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.CachedListing{})
	if result.Error != nil {
		return 0, fmt.Errorf("listing cache service: clear old: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// wellFormedPage reads ordered in chunks of limit until it holds limit well-formed rows or
// runs out of rows.
func (s *ListingCacheService) wellFormedPage(ordered *gorm.DB, limit int) ([]models.CachedListing, error) {
	ordered = ordered.Session(&gorm.Session{})
	out := make([]models.CachedListing, 0, limit)
	for offset := 0; len(out) < limit; offset += limit {
		var chunk []models.CachedListing
		if err := ordered.Offset(offset).Limit(limit).Find(&chunk).Error; err != nil {
			return nil, err
		}
		out = append(out, s.dropMalformed(chunk)...)
		if len(chunk) < limit {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ListingCacheService) dropMalformed(rows []models.CachedListing) []models.CachedListing {
	out := rows[:0]
	for _, row := range rows {
		if !wellFormed(row.Payload) {
			s.log.Debug("skipping malformed cached listing", zap.String("id", row.ID))
			continue
		}
		out = append(out, row)
	}
	return out
}
