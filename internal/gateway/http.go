package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/charlesng35/dealcache/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRate    = 10
	defaultBurst   = 5

	maxErrorBody = 512
)

// Options configures an HTTPGateway.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RatePerSecond and Burst pace outgoing writes. Non-positive values use the defaults.
	RatePerSecond float64
	Burst         int
	// Headers are sent with every request, e.g. a device identifier.
	Headers map[string]string
	Client  *http.Client
}

// StatusError reports a non-2xx response from the remote API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("gateway: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTPGateway talks to the remote REST API.
type HTTPGateway struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway validates opts and builds a gateway.
func NewHTTPGateway(opts Options) (*HTTPGateway, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("gateway: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base url %q", raw)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Limit(opts.RatePerSecond)
	if opts.RatePerSecond <= 0 {
		limit = defaultRate
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPGateway{
		base:    base,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		headers: headers,
	}, nil
}

// PushSavedItem posts the saved item payload to the owner's saved collection.
func (g *HTTPGateway) PushSavedItem(ctx context.Context, item models.SavedItem) error {
	body, err := json.Marshal(map[string]any{
		"id":       item.ID,
		"payload":  json.RawMessage(orNull(item.Payload)),
		"saved_at": item.SavedAt,
	})
	if err != nil {
		return fmt.Errorf("gateway: encode saved item: %w", err)
	}
	return g.send(ctx, http.MethodPost, userPath(item.OwnerID, "saved"), body)
}

// PushFavorite posts a favorite to the user's favorites collection.
func (g *HTTPGateway) PushFavorite(ctx context.Context, favorite models.Favorite) error {
	body, err := json.Marshal(map[string]any{
		"deal_id":    favorite.DealID,
		"created_at": favorite.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("gateway: encode favorite: %w", err)
	}
	return g.send(ctx, http.MethodPost, userPath(favorite.UserID, "favorites"), body)
}

// PushAction posts a user action to the user's action log.
func (g *HTTPGateway) PushAction(ctx context.Context, action models.UserAction) error {
	body, err := json.Marshal(map[string]any{
		"action_type": action.ActionType,
		"deal_id":     action.DealID,
		"created_at":  action.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("gateway: encode action: %w", err)
	}
	return g.send(ctx, http.MethodPost, userPath(action.UserID, "actions"), body)
}

// Create replays a queued create as POST.
func (g *HTTPGateway) Create(ctx context.Context, endpoint string, payload []byte) error {
	return g.send(ctx, http.MethodPost, endpoint, payload)
}

// Update replays a queued update as PUT.
func (g *HTTPGateway) Update(ctx context.Context, endpoint string, payload []byte) error {
	return g.send(ctx, http.MethodPut, endpoint, payload)
}

// Delete replays a queued delete as DELETE.
func (g *HTTPGateway) Delete(ctx context.Context, endpoint string, payload []byte) error {
	return g.send(ctx, http.MethodDelete, endpoint, payload)
}

func (g *HTTPGateway) send(ctx context.Context, method, endpoint string, body []byte) error {
	target, err := g.resolve(endpoint)
	if err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gateway: rate limit: %w", err)
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// resolve joins an origin-relative endpoint onto the base URL. Absolute URLs are rejected so
// queued operations cannot redirect writes to another host.
func (g *HTTPGateway) resolve(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	ref, err := url.Parse(endpoint)
	if err != nil || ref.IsAbs() || ref.Host != "" || !strings.HasPrefix(endpoint, "/") {
		return "", fmt.Errorf("gateway: invalid endpoint %q", endpoint)
	}
	return g.base.ResolveReference(ref).String(), nil
}

func userPath(userID, collection string) string {
	return "/api/users/" + url.PathEscape(userID) + "/" + collection
}

func orNull(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
