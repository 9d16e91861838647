package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is embedded by rows keyed by a generated identifier. Version 7 ids sort by creation
// time, so listings ordered by id come back newest last without an extra index.
type Record struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id unless the caller supplied one.
func (r *Record) BeforeCreate(*gorm.DB) error {
	if r.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	r.ID = id.String()
	return nil
}

// Setting is a daemon-wide key/value pair, such as the active network cache version.
type Setting struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName keeps settings in their own namespace.
func (Setting) TableName() string { return "daemon_settings" }

// KVEntry backs the SQL implementation of the TTL cache: rate limit counters and API response
// envelopes when Redis is not configured.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:512"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName returns the cache table.
func (KVEntry) TableName() string { return "kv_entries" }
