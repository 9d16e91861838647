package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/charlesng35/dealcache/internal/cache"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// DefaultAPICacheTTL applies when CacheResponse is called without a TTL.
const DefaultAPICacheTTL = time.Hour

const apiCacheKeyPrefix = "api:"

// APICacheEnvelope is the stored form of a cached API response.
type APICacheEnvelope struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// APICacheService keeps API payloads keyed by request URL with a per-entry expiry.
type APICacheService struct {
	store cache.Store
	now   Clock
}

// NewAPICacheService constructs an APICacheService over any cache tier.
func NewAPICacheService(store cache.Store, clock Clock) (*APICacheService, error) {
	if store == nil {
		return nil, errors.New("api cache service: store is required")
	}
	return &APICacheService{store: store, now: utcClock(clock)}, nil
}

// CacheResponse stores data for url. A non-positive ttl falls back to DefaultAPICacheTTL.
func (s *APICacheService) CacheResponse(ctx context.Context, url string, data any, ttl time.Duration) (*APICacheEnvelope, error) {
	ctx = ensureContext(ctx)
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperrors.NewBadRequest("url is required")
	}
	if ttl <= 0 {
		ttl = DefaultAPICacheTTL
	}

	payload, err := encodePayload(data)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		payload = []byte("null")
	}

	now := s.now()
	envelope := APICacheEnvelope{
		Data:      json.RawMessage(payload),
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("api cache service: encode envelope: %w", err)
	}
	if err := s.store.Set(ctx, apiCacheKey(url), encoded, ttl); err != nil {
		return nil, fmt.Errorf("api cache service: store %s: %w", url, err)
	}
	return &envelope, nil
}

// CachedResponse returns the payload for url while it is unexpired. Expired entries read as a
// miss and are left for PurgeExpired.
func (s *APICacheService) CachedResponse(ctx context.Context, url string) (json.RawMessage, bool, error) {
	ctx = ensureContext(ctx)
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, false, apperrors.NewBadRequest("url is required")
	}

	raw, ok, err := s.store.Get(ctx, apiCacheKey(url))
	if err != nil {
		return nil, false, fmt.Errorf("api cache service: load %s: %w", url, err)
	}
	if !ok {
		return nil, false, nil
	}

	var envelope APICacheEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false, nil
	}
	if !s.now().Before(envelope.ExpiresAt) {
		return nil, false, nil
	}
	return envelope.Data, true, nil
}

// PurgeExpired drops expired entries from stores that do not expire them on their own.
func (s *APICacheService) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.store.PurgeExpired(ensureContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("api cache service: purge expired: %w", err)
	}
	return removed, nil
}

func apiCacheKey(url string) string {
	return apiCacheKeyPrefix + url
}
