package models

import "time"

// UserAction is an append-only log entry (view, click, share, ...).
type UserAction struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ActionType string    `gorm:"size:64;not null" json:"action_type"`
	DealID     string    `gorm:"size:128;not null" json:"deal_id"`
	UserID     string    `gorm:"size:128;not null;index" json:"user_id"`
	Synced     bool      `gorm:"index;default:false" json:"synced"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false" json:"created_at"`
}
