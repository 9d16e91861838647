package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/models"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// PreferenceService stores last-write-wins key/value preferences.
type PreferenceService struct {
	db  *gorm.DB
	now Clock
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB, clock Clock) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	return &PreferenceService{db: db, now: utcClock(clock)}, nil
}

// Set upserts the value for key.
func (s *PreferenceService) Set(ctx context.Context, key string, value any) (*models.Preference, error) {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperrors.NewBadRequest("preference key is required")
	}

	data, err := encodePayload(value)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		data = []byte("null")
	}

	pref := models.Preference{Key: key, Value: data, UpdatedAt: s.now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error; err != nil {
		return nil, fmt.Errorf("preference service: set %s: %w", key, err)
	}
	return &pref, nil
}

// Get returns the stored preference or ErrNotFound.
func (s *PreferenceService) Get(ctx context.Context, key string) (*models.Preference, error) {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperrors.NewBadRequest("preference key is required")
	}

	var pref models.Preference
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("preference service: get %s: %w", key, err)
	}
	return &pref, nil
}
