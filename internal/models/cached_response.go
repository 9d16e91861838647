package models

import (
	"time"

	"gorm.io/datatypes"
)

// CachedResponse is an HTTP response held in one of the named network caches.
// Body holds the zstd-compressed payload.
type CachedResponse struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	CacheName string         `gorm:"size:128;not null;uniqueIndex:idx_cached_responses_name_key"`
	CacheKey  string         `gorm:"size:512;not null;uniqueIndex:idx_cached_responses_name_key"`
	Method    string         `gorm:"size:16;not null"`
	URL       string         `gorm:"type:text;not null"`
	Status    int            `gorm:"not null"`
	Header    datatypes.JSON
	Body      []byte    `gorm:"type:blob"`
	StoredAt  time.Time `gorm:"index"`
}
