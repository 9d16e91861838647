package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Device string
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Device: r.Header.Get("X-Device-ID"),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestHTTPGatewayPushesRecords(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusCreated)
	gw, err := NewHTTPGateway(Options{BaseURL: srv.URL, Headers: map[string]string{"X-Device-ID": "dev-1"}})
	require.NoError(t, err)
	ctx := context.Background()

	savedAt := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, gw.PushSavedItem(ctx, models.SavedItem{ID: "d1", OwnerID: "u 1", Payload: []byte(`{"id":"d1"}`), SavedAt: savedAt}))
	require.NoError(t, gw.PushFavorite(ctx, models.Favorite{DealID: "d2", UserID: "u1"}))
	require.NoError(t, gw.PushAction(ctx, models.UserAction{ActionType: "view", DealID: "d3", UserID: "u1"}))

	got := requests()
	require.Len(t, got, 3)
	require.Equal(t, http.MethodPost, got[0].Method)
	require.Equal(t, "/api/users/u 1/saved", got[0].Path)
	require.Equal(t, "dev-1", got[0].Device)

	var saved map[string]any
	require.NoError(t, json.Unmarshal([]byte(got[0].Body), &saved))
	require.Equal(t, "d1", saved["id"])
	require.Equal(t, map[string]any{"id": "d1"}, saved["payload"])

	require.Equal(t, "/api/users/u1/favorites", got[1].Path)
	require.Equal(t, "/api/users/u1/actions", got[2].Path)
	require.JSONEq(t, `{"action_type":"view","deal_id":"d3","created_at":"0001-01-01T00:00:00Z"}`, got[2].Body)
}

func TestHTTPGatewayQueueOperationsMapToMethods(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusNoContent)
	gw, err := NewHTTPGateway(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, gw.Create(ctx, "/api/deals/1/votes", []byte(`{"v":1}`)))
	require.NoError(t, gw.Update(ctx, "/api/deals/1", []byte(`{"title":"x"}`)))
	require.NoError(t, gw.Delete(ctx, "/api/deals/1", nil))

	got := requests()
	require.Len(t, got, 3)
	require.Equal(t, []string{http.MethodPost, http.MethodPut, http.MethodDelete},
		[]string{got[0].Method, got[1].Method, got[2].Method})
	require.Equal(t, `{"v":1}`, got[0].Body)
	require.Empty(t, got[2].Body)
}

func TestHTTPGatewayNon2xxIsError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusBadGateway)
	gw, err := NewHTTPGateway(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	err = gw.Create(context.Background(), "/api/deals", []byte(`{}`))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "nope")
}

func TestHTTPGatewayRejectsForeignEndpoints(t *testing.T) {
	srv, requests := newRecordingServer(t, http.StatusOK)
	gw, err := NewHTTPGateway(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	for _, endpoint := range []string{"https://elsewhere.example.com/api", "//elsewhere.example.com/api", "api/deals"} {
		require.Error(t, gw.Create(context.Background(), endpoint, nil), endpoint)
	}
	require.Empty(t, requests())
}

func TestNewHTTPGatewayValidatesBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(Options{})
	require.Error(t, err)

	_, err = NewHTTPGateway(Options{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestHTTPGatewayHonoursCancelledContext(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK)
	gw, err := NewHTTPGateway(Options{BaseURL: srv.URL, RatePerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	require.NoError(t, gw.Delete(context.Background(), "/api/x", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, gw.Delete(ctx, "/api/x", nil))
}
