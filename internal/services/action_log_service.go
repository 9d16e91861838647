package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// DefaultActionBatch bounds how many actions one synchronisation pass uploads.
const DefaultActionBatch = 50

// ActionLogService appends user interactions for later upload.
type ActionLogService struct {
	db  *gorm.DB
	now Clock
}

// NewActionLogService constructs an ActionLogService.
func NewActionLogService(db *gorm.DB, clock Clock) (*ActionLogService, error) {
	if db == nil {
		return nil, errors.New("action log service: db is required")
	}
	return &ActionLogService{db: db, now: utcClock(clock)}, nil
}

// Record appends an unsynced action.
func (s *ActionLogService) Record(ctx context.Context, actionType, dealID, userID string) (*models.UserAction, error) {
	ctx = ensureContext(ctx)
	actionType = strings.ToLower(strings.TrimSpace(actionType))
	dealID = strings.TrimSpace(dealID)
	userID = strings.TrimSpace(userID)
	if actionType == "" || dealID == "" || userID == "" {
		return nil, apperrors.NewBadRequest("action type, deal id and user id are required")
	}

	row := models.UserAction{
		ActionType: actionType,
		DealID:     dealID,
		UserID:     userID,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("action log service: record: %w", err)
	}
	return &row, nil
}

// Unsynced returns up to limit unsynced actions in recording order.
func (s *ActionLogService) Unsynced(ctx context.Context, limit int) ([]models.UserAction, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultActionBatch
	}
	var rows []models.UserAction
	if err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("action log service: list unsynced: %w", err)
	}
	return rows, nil
}

// MarkSynced flags actions by row id.
func (s *ActionLogService) MarkSynced(ctx context.Context, ids []uint) (int64, error) {
	ctx = ensureContext(ctx)
	ids = uniqueUints(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&models.UserAction{}).Where("id IN ?", ids).Update("synced", true)
	if result.Error != nil {
		return 0, fmt.Errorf("action log service: mark synced: %w", result.Error)
	}
	return result.RowsAffected, nil
}
