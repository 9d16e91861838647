package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/api"
	"github.com/charlesng35/dealcache/internal/app"
	"github.com/charlesng35/dealcache/internal/cache"
	"github.com/charlesng35/dealcache/internal/connectivity"
	sharedtestutil "github.com/charlesng35/dealcache/internal/database/testutil"
	"github.com/charlesng35/dealcache/internal/gateway"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/netcache"
	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/syncer"
	"github.com/charlesng35/dealcache/pkg/response"
)

// RecordedRequest is one request received by the fake remote API.
type RecordedRequest struct {
	Method string
	Path   string
	Body   string
}

// Remote is a fake deals origin. It serves a small site and accepts every write under /api/users.
type Remote struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	failing  bool
}

// Requests returns a copy of the requests received so far.
func (r *Remote) Requests() []RecordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedRequest(nil), r.requests...)
}

// Writes returns the non-GET requests received so far.
func (r *Remote) Writes() []RecordedRequest {
	var writes []RecordedRequest
	for _, req := range r.Requests() {
		if req.Method != http.MethodGet {
			writes = append(writes, req)
		}
	}
	return writes
}

// SetFailing makes every response a 500.
func (r *Remote) SetFailing(failing bool) {
	r.mu.Lock()
	r.failing = failing
	r.mu.Unlock()
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.requests = append(r.requests, RecordedRequest{Method: req.Method, Path: req.URL.Path, Body: string(body)})
	failing := r.failing
	r.mu.Unlock()

	if failing {
		http.Error(w, "origin failure", http.StatusInternalServerError)
		return
	}

	switch {
	case strings.HasPrefix(req.URL.Path, "/api/users/"):
		w.WriteHeader(http.StatusCreated)
	case strings.HasPrefix(req.URL.Path, "/api/"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"deals":[{"id":"1","title":"Headphones"}]}`)
	case req.URL.Path == "/offline.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<h1>offline</h1>")
	default:
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<h1>deals</h1>")
	}
}

// Env encapsulates a fully-wired local API backed by an in-memory database and a fake origin.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Config  *app.Config
	Client  *offline.Client
	Monitor *connectivity.Monitor
	Engine  *syncer.Engine
	Proxy   *netcache.Proxy
	Hub     *realtime.Hub
	Remote  *Remote
	Router  *gin.Engine
}

// NewEnv provisions a fresh handler test environment. The remote starts reachable.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	remote := &Remote{}
	remote.Server = httptest.NewServer(http.HandlerFunc(remote.serve))
	t.Cleanup(remote.Server.Close)

	db := sharedtestutil.NewDB(t)
	monitor := connectivity.NewMonitor(true)
	hub := realtime.NewHub()

	module, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	client := offline.NewClient(offline.WithDB(db), offline.WithMonitor(monitor), offline.WithPublisher(hub))
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	saved, favorites, actions, queue, err := client.Stores()
	require.NoError(t, err)

	gw, err := gateway.NewHTTPGateway(gateway.Options{BaseURL: remote.Server.URL, RatePerSecond: 1000, Burst: 100})
	require.NoError(t, err)

	engine, err := syncer.NewEngine(syncer.Stores{
		Saved:     saved,
		Favorites: favorites,
		Actions:   actions,
		Queue:     queue,
	}, gw, monitor, syncer.WithPublisher(hub))
	require.NoError(t, err)

	storage, err := netcache.NewStorage(db, 1)
	require.NoError(t, err)
	proxy, err := netcache.New(storage, netcache.Options{Origin: remote.Server.URL, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(proxy.Wait)

	router, err := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Client:     client,
		Sync:       engine,
		Proxy:      proxy,
		Hub:        hub,
		Monitoring: module,
		Counters:   cache.NewMemoryStore(1),
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Config:  cfg,
		Client:  client,
		Monitor: monitor,
		Engine:  engine,
		Proxy:   proxy,
		Hub:     hub,
		Remote:  remote,
		Router:  router,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, JSON-encoding body when set.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// MustSucceed executes a request, asserts the status and returns the decoded envelope.
func (e *Env) MustSucceed(method, path string, body any, status int) APIResponse {
	e.T.Helper()
	w := e.Request(method, path, body)
	require.Equal(e.T, status, w.Code, w.Body.String())
	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())
	return resp
}
