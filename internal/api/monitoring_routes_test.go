package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/handlers/testutil"
)

func TestMonitoringSummary(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.MustSucceed(http.MethodGet, "/local/monitoring/summary", nil, http.StatusOK)

	var body struct {
		Summary    map[string]any `json:"summary"`
		Readiness  string         `json:"readiness"`
		Prometheus struct {
			Enabled  bool   `json:"enabled"`
			Endpoint string `json:"endpoint"`
		} `json:"prometheus"`
	}
	testutil.DecodeInto(t, resp.Data, &body)
	require.NotNil(t, body.Summary)
	require.Contains(t, []string{"up", "degraded"}, body.Readiness)
	require.True(t, body.Prometheus.Enabled)
	require.Equal(t, "/metrics", body.Prometheus.Endpoint)
}

func TestProxiedPagesCarryCacheSource(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/deals", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "Headphones")
	require.NotEmpty(t, w.Header().Get("X-Cache-Source"))
	require.Empty(t, w.Header().Get("X-Content-Type-Options"))
}
