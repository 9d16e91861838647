package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/models"
)

// NetCacheVersionKey names the setting holding the version tag of the active network caches.
const NetCacheVersionKey = "netcache.version"

var settingKey = clause.Column{Name: "key"}

// Settings is the daemon_settings key/value table.
type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

// Lookup returns the stored value. A database that has not been migrated yet has no settings.
func (s *Settings) Lookup(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("settings: no database")
	}
	return lookupSetting(s.db.WithContext(ctx), key)
}

// Put stores value under key.
func (s *Settings) Put(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("settings: no database")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings: empty key")
	}
	if err := putSetting(s.db.WithContext(ctx), key, value); err != nil {
		return fmt.Errorf("settings: put %s: %w", key, err)
	}
	return nil
}

// Swap stores value and returns what key held before, or "" when it was unset.
func (s *Settings) Swap(ctx context.Context, key, value string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("settings: no database")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("settings: empty key")
	}

	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, found, err := lookupSetting(tx, key)
		if err != nil {
			return err
		}
		previous = old
		if found && old == value {
			return nil
		}
		return putSetting(tx, key, value)
	})
	if err != nil {
		return "", fmt.Errorf("settings: swap %s: %w", key, err)
	}
	return previous, nil
}

func lookupSetting(db *gorm.DB, key string) (string, bool, error) {
	var row models.Setting
	err := db.Where(clause.Eq{Column: settingKey, Value: key}).Take(&row).Error
	switch {
	case err == nil:
		return row.Value, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case !db.Migrator().HasTable(&models.Setting{}):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("settings: lookup %s: %w", key, err)
	}
}

func putSetting(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{settingKey},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}
