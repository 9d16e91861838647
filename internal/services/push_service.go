package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/realtime"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

const defaultPushTitle = "New deal"

// PushActions lists the actions offered on every received notification.
var PushActions = []string{models.PushActionView, models.PushActionFavorite, models.PushActionDismiss}

// PushPayload is an incoming push message.
type PushPayload struct {
	UserID   string `json:"user_id" validate:"required"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	DealID   string `json:"deal_id"`
	DeepLink string `json:"deep_link" validate:"omitempty,endpoint"`
}

// PushNotificationDTO is the API and realtime form of a received notification.
type PushNotificationDTO struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	DealID      string     `json:"deal_id,omitempty"`
	DeepLink    string     `json:"deep_link"`
	Actions     []string   `json:"actions"`
	LastAction  string     `json:"last_action,omitempty"`
	ActedAt     *time.Time `json:"acted_at,omitempty"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PushActionResult describes the outcome of a notification action.
type PushActionResult struct {
	Notification PushNotificationDTO `json:"notification"`
	// Navigate is set for view actions.
	Navigate string `json:"navigate,omitempty"`
	// Favorite is set for favorite actions.
	Favorite *models.Favorite `json:"favorite,omitempty"`
}

// PushService receives push messages and applies their actions.
type PushService struct {
	db        *gorm.DB
	favorites *FavoriteService
	publisher realtime.Publisher
	now       Clock
}

// NewPushService constructs a PushService. publisher may be nil.
func NewPushService(db *gorm.DB, favorites *FavoriteService, publisher realtime.Publisher, clock Clock) (*PushService, error) {
	if db == nil {
		return nil, errors.New("push service: db is required")
	}
	if favorites == nil {
		return nil, errors.New("push service: favorite service is required")
	}
	return &PushService{db: db, favorites: favorites, publisher: publisher, now: utcClock(clock)}, nil
}

// Receive stores a notification with the standard actions and announces it on the push stream.
func (s *PushService) Receive(ctx context.Context, payload PushPayload) (*PushNotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	dealID := strings.TrimSpace(payload.DealID)
	link := strings.TrimSpace(payload.DeepLink)
	if link == "" {
		link = "/"
		if dealID != "" {
			link = "/deals/" + url.PathEscape(dealID)
		}
	}

	actions, err := json.Marshal(PushActions)
	if err != nil {
		return nil, fmt.Errorf("push service: encode actions: %w", err)
	}

	now := s.now()
	row := models.PushNotification{
		UserID:   userID,
		Title:    defaultIfEmpty(strings.TrimSpace(payload.Title), defaultPushTitle),
		Body:     strings.TrimSpace(payload.Body),
		DealID:   dealID,
		DeepLink: link,
		Actions:  datatypes.JSON(actions),
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("push service: store notification: %w", err)
	}

	dto := mapPushNotification(row)
	s.broadcast(userID, "push.received", dto)
	return &dto, nil
}

// HandleAction applies view, favorite or dismiss to a stored notification.
func (s *PushService) HandleAction(ctx context.Context, id, action string) (*PushActionResult, error) {
	ctx = ensureContext(ctx)
	action = strings.ToLower(strings.TrimSpace(action))

	var row models.PushNotification
	err := s.db.WithContext(ctx).Take(&row, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("push service: load notification: %w", err)
	}

	now := s.now()
	result := &PushActionResult{}
	updates := map[string]any{"last_action": action, "updated_at": now}

	switch action {
	case models.PushActionView:
		updates["acted_at"] = now
		row.ActedAt = &now
		result.Navigate = row.DeepLink
	case models.PushActionFavorite:
		if row.DealID == "" {
			return nil, apperrors.NewBadRequest("notification does not reference a deal")
		}
		fav, _, err := s.favorites.AddOffline(ctx, row.DealID, row.UserID)
		if err != nil {
			return nil, err
		}
		updates["acted_at"] = now
		row.ActedAt = &now
		result.Favorite = fav
	case models.PushActionDismiss:
		updates["dismissed_at"] = now
		row.DismissedAt = &now
	default:
		return nil, apperrors.NewBadRequest("action must be one of view, favorite, dismiss")
	}

	if err := s.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("push service: record action: %w", err)
	}
	row.LastAction = action

	result.Notification = mapPushNotification(row)
	s.broadcast(row.UserID, "push."+action, result.Notification)
	return result, nil
}

// List returns notifications for userID, newest first.
func (s *PushService) List(ctx context.Context, userID string, limit int) ([]PushNotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var rows []models.PushNotification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("push service: list notifications: %w", err)
	}

	items := make([]PushNotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapPushNotification(row))
	}
	return items, nil
}

func (s *PushService) broadcast(userID, event string, dto PushNotificationDTO) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(userID, realtime.Message{
		Stream: realtime.StreamPush,
		Event:  event,
		Data:   dto,
	})
}

func mapPushNotification(row models.PushNotification) PushNotificationDTO {
	actions := []string{}
	if len(row.Actions) > 0 {
		_ = json.Unmarshal(row.Actions, &actions)
	}
	return PushNotificationDTO{
		ID:          row.ID,
		UserID:      row.UserID,
		Title:       row.Title,
		Body:        row.Body,
		DealID:      row.DealID,
		DeepLink:    row.DeepLink,
		Actions:     actions,
		LastAction:  row.LastAction,
		ActedAt:     row.ActedAt,
		DismissedAt: row.DismissedAt,
		CreatedAt:   row.CreatedAt,
	}
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
