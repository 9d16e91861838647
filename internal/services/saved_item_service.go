package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/models"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// SavedItemService manages deals saved by users on this device.
type SavedItemService struct {
	db    *gorm.DB
	queue *SyncQueueService
	reach Reachability
	now   Clock
}

// NewSavedItemService constructs a SavedItemService. A nil reachability source treats the
// device as offline, so every save is flushed by the next synchronisation pass.
func NewSavedItemService(db *gorm.DB, queue *SyncQueueService, reach Reachability, clock Clock) (*SavedItemService, error) {
	if db == nil {
		return nil, errors.New("saved item service: db is required")
	}
	if queue == nil {
		return nil, errors.New("saved item service: sync queue is required")
	}
	if reach == nil {
		reach = alwaysOffline{}
	}
	return &SavedItemService{db: db, queue: queue, reach: reach, now: utcClock(clock)}, nil
}

// Save upserts the item keyed by its payload id. synced reflects reachability at call time and
// every save bumps the stored revision.
func (s *SavedItemService) Save(ctx context.Context, ownerID string, payload []byte) (*models.SavedItem, error) {
	ctx = ensureContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.NewBadRequest("owner id is required")
	}
	id, err := recordID(payload)
	if err != nil {
		return nil, err
	}
	data, err := validJSON(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	online := s.reach.IsOnline()
	item := models.SavedItem{
		ID:        id,
		OwnerID:   ownerID,
		Payload:   data,
		SavedAt:   now,
		Synced:    online,
		Revision:  1,
		UpdatedAt: now,
	}
	columns := []string{"owner_id", "payload", "saved_at", "synced", "updated_at"}
	if online {
		item.PushedAt = &now
		columns = append(columns, "pushed_at")
	}
	upsert := clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: append(clause.AssignmentColumns(columns), clause.Assignment{
			Column: clause.Column{Name: "revision"},
			Value:  gorm.Expr("saved_items.revision + 1"),
		}),
	}

	var stored models.SavedItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsert).Create(&item).Error; err != nil {
			return err
		}
		return tx.Take(&stored, "id = ?", id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("saved item service: save %s: %w", id, err)
	}
	return &stored, nil
}

// Remove deletes the item by id regardless of owner. When the remote API already knew about the
// item, a delete operation is queued so the removal replays on the next synchronisation pass.
// It reports whether a row was removed.
func (s *SavedItemService) Remove(ctx context.Context, id, ownerID string) (bool, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return false, apperrors.NewBadRequest("item id is required")
	}

	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.SavedItem
		err := tx.Take(&item, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result := tx.Delete(&models.SavedItem{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected > 0
		if !removed || (!item.Synced && item.PushedAt == nil) {
			return nil
		}

		owner := item.OwnerID
		if owner == "" {
			owner = strings.TrimSpace(ownerID)
		}
		return s.queueRemoteDelete(tx, id, owner)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return false, err
		}
		return false, fmt.Errorf("saved item service: remove %s: %w", id, err)
	}
	return removed, nil
}

// List returns all items saved by the owner, most recent first.
func (s *SavedItemService) List(ctx context.Context, ownerID string) ([]models.SavedItem, error) {
	ctx = ensureContext(ctx)
	var items []models.SavedItem
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", strings.TrimSpace(ownerID)).
		Order("saved_at DESC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("saved item service: list: %w", err)
	}
	return items, nil
}

// IsSaved reports whether id is saved by ownerID. Items owned by someone else read as not saved.
func (s *SavedItemService) IsSaved(ctx context.Context, id, ownerID string) (bool, error) {
	ctx = ensureContext(ctx)
	var item models.SavedItem
	err := s.db.WithContext(ctx).Select("id", "owner_id").Take(&item, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("saved item service: lookup %s: %w", id, err)
	}
	return item.OwnerID == strings.TrimSpace(ownerID), nil
}

// Unsynced returns items not yet acknowledged by the remote API. An empty owner matches all owners.
func (s *SavedItemService) Unsynced(ctx context.Context, ownerID string) ([]models.SavedItem, error) {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).Where("synced = ?", false)
	if ownerID = strings.TrimSpace(ownerID); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var items []models.SavedItem
	if err := query.Order("saved_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("saved item service: list unsynced: %w", err)
	}
	return items, nil
}

// MarkSynced flags the given ids as synced. Unknown ids are skipped.
func (s *SavedItemService) MarkSynced(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.SavedItem{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"synced":     true,
			"pushed_at":  gorm.Expr("COALESCE(pushed_at, ?)", now),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("saved item service: mark synced: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkDelivered records that the remote API accepted items as read by Unsynced. An item is
// flagged synced only while its revision matches the pushed one, so a save that raced the push
// stays pending. An item removed while its push was in flight gets a queued delete. It returns
// the number of items flagged synced.
func (s *SavedItemService) MarkDelivered(ctx context.Context, items []models.SavedItem) (int64, error) {
	ctx = ensureContext(ctx)
	if len(items) == 0 {
		return 0, nil
	}

	now := s.now()
	var marked int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var present int64
			if err := tx.Model(&models.SavedItem{}).Where("id = ?", item.ID).Count(&present).Error; err != nil {
				return err
			}
			if present == 0 {
				if err := s.queueRemoteDelete(tx, item.ID, item.OwnerID); err != nil {
					return err
				}
				continue
			}

			if err := tx.Model(&models.SavedItem{}).
				Where("id = ? AND pushed_at IS NULL", item.ID).
				Update("pushed_at", now).Error; err != nil {
				return err
			}
			result := tx.Model(&models.SavedItem{}).
				Where("id = ? AND revision = ?", item.ID, item.Revision).
				Updates(map[string]any{"synced": true, "updated_at": now})
			if result.Error != nil {
				return result.Error
			}
			marked += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("saved item service: mark delivered: %w", err)
	}
	return marked, nil
}

func (s *SavedItemService) queueRemoteDelete(tx *gorm.DB, id, ownerID string) error {
	_, err := s.queue.enqueueTx(tx, models.SyncOperationDelete, savedItemEndpoint(ownerID, id), map[string]string{
		"id":       id,
		"owner_id": ownerID,
	})
	return err
}

func savedItemEndpoint(ownerID, id string) string {
	return "/api/users/" + url.PathEscape(ownerID) + "/saved/" + url.PathEscape(id)
}
