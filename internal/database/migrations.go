package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
)

// Schema lists every table the daemon owns.
func Schema() []any {
	return []any{
		// web structured store
		&models.SavedItem{},
		&models.CachedListing{},
		&models.KVEntry{},
		&models.Preference{},
		// mobile store and sync
		&models.Favorite{},
		&models.UserAction{},
		&models.SyncOperation{},
		&models.PushNotification{},
		// network cache
		&models.CachedResponse{},
		&models.Setting{},
	}
}

// AutoMigrate brings every table in Schema up to date.
func AutoMigrate(db *gorm.DB) error {
	for _, model := range Schema() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}
