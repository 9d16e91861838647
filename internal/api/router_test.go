package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/app"
	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/database/testutil"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/monitoring/checks"
	"github.com/charlesng35/dealcache/internal/offline"
)

func newTestClient(t *testing.T) *offline.Client {
	t.Helper()
	db := testutil.NewDB(t)
	return offline.NewClient(offline.WithDB(db), offline.WithMonitor(connectivity.NewMonitor(true)))
}

func newTestConfig() *app.Config {
	return &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(Dependencies{Config: newTestConfig()})
	require.Error(t, err)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	module, err := monitoring.NewModule(monitoring.Options{DisableProcessCollector: true})
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		Config:     newTestConfig(),
		Client:     newTestClient(t),
		Monitoring: module,
	})
	require.NoError(t, err)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := serve(router, http.MethodGet, path)
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouterReadyWhileOfflineButNotWhenDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	module, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	module.Health().Register(monitoring.Readiness, checks.Connectivity(connectivity.NewMonitor(false)))

	router, err := NewRouter(Dependencies{Config: newTestConfig(), Client: newTestClient(t), Monitoring: module})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"degraded"`)

	module.Health().Register(monitoring.Readiness, checks.Database(nil))
	w = serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "database not configured")

	w = serve(router, http.MethodGet, "/health/live")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterHealthDisabledWithoutMonitoring(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(Dependencies{Config: newTestConfig(), Client: newTestClient(t)})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "disabled")

	// no metrics route is registered, so the request falls through to NotFound
	w = serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterSecurityHeadersOnlyOnLocalAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(Dependencies{Config: newTestConfig(), Client: newTestClient(t)})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/local/connectivity")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = serve(router, http.MethodGet, "/health")
	require.Empty(t, w.Header().Get("X-Content-Type-Options"))
}

func TestRouterFallsThroughToProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache-Source", "network")
		_, _ = io.WriteString(w, "proxied "+r.URL.Path)
	})

	router, err := NewRouter(Dependencies{
		Config: newTestConfig(),
		Client: newTestClient(t),
		Proxy:  proxy,
	})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/deals/today")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "proxied /deals/today", w.Body.String())
	require.Equal(t, "network", w.Header().Get("X-Cache-Source"))
}

func TestRouterNotFoundWithoutProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(Dependencies{Config: newTestConfig(), Client: newTestClient(t)})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/deals/today")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestRouterSyncUnavailableWithoutEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(Dependencies{Config: newTestConfig(), Client: newTestClient(t)})
	require.NoError(t, err)

	w := serve(router, http.MethodPost, "/local/sync")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "SYNC_UNAVAILABLE")
}
