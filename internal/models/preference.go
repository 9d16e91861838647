package models

import (
	"time"

	"gorm.io/datatypes"
)

// Preference is a last-write-wins key/value setting.
type Preference struct {
	Key       string         `gorm:"primaryKey;size:191" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
}
