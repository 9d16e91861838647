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

const (
	// MaxSyncRetries is the number of failed attempts after which a queued operation stalls.
	MaxSyncRetries = 3
	// DefaultQueueBatch bounds how many operations one synchronisation pass drains.
	DefaultQueueBatch = 10

	maxLastErrorLength = 1024
)

// SyncQueueService owns the generic queue of deferred remote writes.
type SyncQueueService struct {
	db  *gorm.DB
	now Clock
}

// NewSyncQueueService constructs a SyncQueueService.
func NewSyncQueueService(db *gorm.DB, clock Clock) (*SyncQueueService, error) {
	if db == nil {
		return nil, errors.New("sync queue service: db is required")
	}
	return &SyncQueueService{db: db, now: utcClock(clock)}, nil
}

// Enqueue appends an operation with a zero retry count.
func (s *SyncQueueService) Enqueue(ctx context.Context, opType, endpoint string, payload any) (*models.SyncOperation, error) {
	ctx = ensureContext(ctx)
	var op *models.SyncOperation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		op, err = s.enqueueTx(tx, opType, endpoint, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *SyncQueueService) enqueueTx(tx *gorm.DB, opType, endpoint string, payload any) (*models.SyncOperation, error) {
	opType = strings.ToLower(strings.TrimSpace(opType))
	if !isOperationType(opType) {
		return nil, apperrors.NewBadRequest("operation type must be one of create, update, delete")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, apperrors.NewBadRequest("endpoint is required")
	}

	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	op := models.SyncOperation{
		OperationType: opType,
		Endpoint:      endpoint,
		Payload:       data,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Create(&op).Error; err != nil {
		return nil, fmt.Errorf("sync queue service: enqueue: %w", err)
	}
	return &op, nil
}

// Pending returns up to limit operations still eligible for processing, oldest first.
func (s *SyncQueueService) Pending(ctx context.Context, limit int) ([]models.SyncOperation, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultQueueBatch
	}

	var ops []models.SyncOperation
	if err := s.db.WithContext(ctx).
		Where("retry_count < ?", MaxSyncRetries).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("sync queue service: list pending: %w", err)
	}
	return ops, nil
}

// Complete removes an operation the remote API acknowledged.
func (s *SyncQueueService) Complete(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)
	if err := s.db.WithContext(ctx).Delete(&models.SyncOperation{}, id).Error; err != nil {
		return fmt.Errorf("sync queue service: complete %d: %w", id, err)
	}
	return nil
}

// Fail increments the retry counter in place and records the cause.
func (s *SyncQueueService) Fail(ctx context.Context, id uint, cause error) error {
	ctx = ensureContext(ctx)
	message := ""
	if cause != nil {
		message = cause.Error()
		if len(message) > maxLastErrorLength {
			message = message[:maxLastErrorLength]
		}
	}

	result := s.db.WithContext(ctx).
		Model(&models.SyncOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  message,
			"updated_at":  s.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("sync queue service: record failure %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Stalled lists operations that exhausted their retries. They are kept for inspection only.
func (s *SyncQueueService) Stalled(ctx context.Context) ([]models.SyncOperation, error) {
	ctx = ensureContext(ctx)
	var ops []models.SyncOperation
	if err := s.db.WithContext(ctx).
		Where("retry_count >= ?", MaxSyncRetries).
		Order("created_at ASC").
		Order("id ASC").
		Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("sync queue service: list stalled: %w", err)
	}
	return ops, nil
}

// Depth counts pending and stalled operations.
func (s *SyncQueueService) Depth(ctx context.Context) (pending, stalled int64, err error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx).Model(&models.SyncOperation{})
	if err = db.Where("retry_count < ?", MaxSyncRetries).Count(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("sync queue service: count pending: %w", err)
	}
	if err = s.db.WithContext(ctx).Model(&models.SyncOperation{}).Where("retry_count >= ?", MaxSyncRetries).Count(&stalled).Error; err != nil {
		return 0, 0, fmt.Errorf("sync queue service: count stalled: %w", err)
	}
	return pending, stalled, nil
}

func isOperationType(value string) bool {
	switch value {
	case models.SyncOperationCreate, models.SyncOperationUpdate, models.SyncOperationDelete:
		return true
	}
	return false
}
