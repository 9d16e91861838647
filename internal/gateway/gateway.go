// Package gateway delivers locally recorded changes to the remote deals API.
package gateway

import (
	"context"

	"github.com/charlesng35/dealcache/internal/models"
)

// Gateway is the remote side of synchronisation. Every method returns nil only when the remote
// API acknowledged the write.
type Gateway interface {
	PushSavedItem(ctx context.Context, item models.SavedItem) error
	PushFavorite(ctx context.Context, favorite models.Favorite) error
	PushAction(ctx context.Context, action models.UserAction) error

	Create(ctx context.Context, endpoint string, payload []byte) error
	Update(ctx context.Context, endpoint string, payload []byte) error
	Delete(ctx context.Context, endpoint string, payload []byte) error
}
