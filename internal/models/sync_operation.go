package models

import (
	"time"

	"gorm.io/datatypes"
)

// Queued operation types.
const (
	SyncOperationCreate = "create"
	SyncOperationUpdate = "update"
	SyncOperationDelete = "delete"
)

// SyncOperation is a deferred remote write waiting in the sync queue.
type SyncOperation struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	OperationType string         `gorm:"size:16;not null" json:"operation_type"`
	Endpoint      string         `gorm:"type:text;not null" json:"endpoint"`
	Payload       datatypes.JSON `json:"payload"`
	RetryCount    int            `gorm:"not null;default:0;index" json:"retry_count"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time      `gorm:"index;autoCreateTime:false" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName keeps the historical queue table name.
func (SyncOperation) TableName() string {
	return "sync_queue"
}
