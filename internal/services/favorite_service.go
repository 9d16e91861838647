package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// FavoriteService tracks deals favorited on this device until the remote API acknowledges them.
type FavoriteService struct {
	db    *gorm.DB
	queue *SyncQueueService
	now   Clock
}

// NewFavoriteService constructs a FavoriteService.
func NewFavoriteService(db *gorm.DB, queue *SyncQueueService, clock Clock) (*FavoriteService, error) {
	if db == nil {
		return nil, errors.New("favorite service: db is required")
	}
	if queue == nil {
		return nil, errors.New("favorite service: sync queue is required")
	}
	return &FavoriteService{db: db, queue: queue, now: utcClock(clock)}, nil
}

// AddOffline inserts an unsynced favorite unless the pair already exists. created reports
// whether a new row was written; the stored row is returned either way.
func (s *FavoriteService) AddOffline(ctx context.Context, dealID, userID string) (fav *models.Favorite, created bool, err error) {
	ctx = ensureContext(ctx)
	dealID = strings.TrimSpace(dealID)
	userID = strings.TrimSpace(userID)
	if dealID == "" || userID == "" {
		return nil, false, apperrors.NewBadRequest("deal id and user id are required")
	}

	row := models.Favorite{DealID: dealID, UserID: userID, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if !isDuplicate(err) {
			return nil, false, fmt.Errorf("favorite service: add %s: %w", dealID, err)
		}
		existing, lookupErr := s.find(ctx, dealID, userID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		return existing, false, nil
	}
	return &row, true, nil
}

// Remove deletes the favorite. A favorite the remote API already holds gets a queued delete.
func (s *FavoriteService) Remove(ctx context.Context, dealID, userID string) (bool, error) {
	ctx = ensureContext(ctx)
	dealID = strings.TrimSpace(dealID)
	userID = strings.TrimSpace(userID)
	if dealID == "" || userID == "" {
		return false, apperrors.NewBadRequest("deal id and user id are required")
	}

	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Favorite
		err := tx.Take(&row, "deal_id = ? AND user_id = ?", dealID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result := tx.Delete(&models.Favorite{}, row.ID)
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected > 0
		if !removed || !row.Synced {
			return nil
		}
		return s.queueRemoteDelete(tx, dealID, userID)
	})
	if err != nil {
		return false, fmt.Errorf("favorite service: remove %s: %w", dealID, err)
	}
	return removed, nil
}

// List returns the favorited deal ids for userID, oldest first.
func (s *FavoriteService) List(ctx context.Context, userID string) ([]string, error) {
	ctx = ensureContext(ctx)
	ids := []string{}
	if err := s.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at ASC").
		Order("id ASC").
		Pluck("deal_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("favorite service: list: %w", err)
	}
	return ids, nil
}

// Unsynced returns favorites the remote API has not acknowledged.
func (s *FavoriteService) Unsynced(ctx context.Context) ([]models.Favorite, error) {
	ctx = ensureContext(ctx)
	var rows []models.Favorite
	if err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("favorite service: list unsynced: %w", err)
	}
	return rows, nil
}

// MarkSynced flags favorites by row id.
func (s *FavoriteService) MarkSynced(ctx context.Context, ids []uint) (int64, error) {
	ctx = ensureContext(ctx)
	ids = uniqueUints(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&models.Favorite{}).Where("id IN ?", ids).Update("synced", true)
	if result.Error != nil {
		return 0, fmt.Errorf("favorite service: mark synced: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkDelivered flags pushed favorites as synced. A favorite removed while its push was in
// flight never reached Remove as synced, so its delete is queued here instead.
func (s *FavoriteService) MarkDelivered(ctx context.Context, rows []models.Favorite) (int64, error) {
	ctx = ensureContext(ctx)
	if len(rows) == 0 {
		return 0, nil
	}

	var marked int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			var present int64
			if err := tx.Model(&models.Favorite{}).Where("id = ?", row.ID).Count(&present).Error; err != nil {
				return err
			}
			if present == 0 {
				if err := s.queueRemoteDelete(tx, row.DealID, row.UserID); err != nil {
					return err
				}
				continue
			}
			result := tx.Model(&models.Favorite{}).Where("id = ? AND synced = ?", row.ID, false).Update("synced", true)
			if result.Error != nil {
				return result.Error
			}
			marked += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("favorite service: mark delivered: %w", err)
	}
	return marked, nil
}

func (s *FavoriteService) queueRemoteDelete(tx *gorm.DB, dealID, userID string) error {
	_, err := s.queue.enqueueTx(tx, models.SyncOperationDelete, favoriteEndpoint(userID, dealID), map[string]string{
		"deal_id": dealID,
		"user_id": userID,
	})
	return err
}

func (s *FavoriteService) find(ctx context.Context, dealID, userID string) (*models.Favorite, error) {
	var row models.Favorite
	if err := s.db.WithContext(ctx).Take(&row, "deal_id = ? AND user_id = ?", dealID, userID).Error; err != nil {
		return nil, fmt.Errorf("favorite service: load %s: %w", dealID, err)
	}
	return &row, nil
}

func favoriteEndpoint(userID, dealID string) string {
	return "/api/users/" + url.PathEscape(userID) + "/favorites/" + url.PathEscape(dealID)
}
