package models

import (
	"time"

	"gorm.io/datatypes"
)

// CachedListing is a read-through copy of a deal listing. Category is empty for
// deals cached individually.
type CachedListing struct {
	ID           string         `gorm:"primaryKey;size:128" json:"id"`
	Category     string         `gorm:"size:128;index" json:"category,omitempty"`
	Payload      datatypes.JSON `json:"payload"`
	CachedAt     time.Time      `json:"cached_at"`
	LastAccessed time.Time      `gorm:"index" json:"last_accessed"`
	UpdatedAt    time.Time      `gorm:"index;autoUpdateTime:false" json:"updated_at"`
}
