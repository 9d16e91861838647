package models

import (
	"time"

	"gorm.io/datatypes"
)

// SavedItem is a deal the user saved locally. ID matches the remote resource id.
//
// Synced tracks the current payload. PushedAt is set the first time the remote API receives
// any version of the item and survives later saves, so removals know to replay a delete.
type SavedItem struct {
	ID       string         `gorm:"primaryKey;size:128" json:"id"`
	OwnerID  string         `gorm:"size:128;index;not null" json:"owner_id"`
	Payload  datatypes.JSON `json:"payload"`
	SavedAt  time.Time      `json:"saved_at"`
	Synced   bool           `gorm:"index;default:false" json:"synced"`
	Revision int64          `gorm:"not null;default:1" json:"revision"`
	PushedAt *time.Time     `json:"pushed_at,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}
