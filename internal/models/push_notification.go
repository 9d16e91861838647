package models

import (
	"time"

	"gorm.io/datatypes"
)

// Push notification actions.
const (
	PushActionView     = "view"
	PushActionFavorite = "favorite"
	PushActionDismiss  = "dismiss"
)

// PushNotification is a received push message together with its action state.
type PushNotification struct {
	Record

	UserID   string         `gorm:"size:128;index" json:"user_id"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Body     string         `gorm:"type:text" json:"body"`
	DealID   string         `gorm:"size:128" json:"deal_id,omitempty"`
	DeepLink string         `gorm:"type:text" json:"deep_link"`
	Actions  datatypes.JSON `json:"actions"`

	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
	ActedAt     *time.Time `json:"acted_at,omitempty"`
	LastAction  string     `gorm:"size:32" json:"last_action,omitempty"`
}
