package models

import "time"

// Favorite records a deal favorited on this device. The (deal, user) pair is unique.
type Favorite struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DealID    string    `gorm:"size:128;not null;uniqueIndex:idx_favorites_deal_user" json:"deal_id"`
	UserID    string    `gorm:"size:128;not null;uniqueIndex:idx_favorites_deal_user;index" json:"user_id"`
	Synced    bool      `gorm:"index;default:false" json:"synced"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
}
