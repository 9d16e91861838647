package monitoring_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/database/testutil"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/monitoring/checks"
)

func setupModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mod, err := monitoring.NewModule(monitoring.Options{DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	return mod
}

func TestSummaryAggregatesMetrics(t *testing.T) {
	setupModule(t)

	monitoring.RecordCacheLookup("memory", true)
	monitoring.RecordCacheLookup("memory", false)
	monitoring.RecordCacheLookup("database", true)
	monitoring.RecordStrategyOutcome("network_first", "cache")
	monitoring.RecordSyncPass("success", 20*time.Millisecond)
	monitoring.RecordSyncPass("skipped", 0)
	monitoring.RecordSyncItems("favorites", 2, 1)
	monitoring.SetQueueDepth(4, 1)
	monitoring.RecordConnectivity(true, true)
	monitoring.SetRealtimeConnections(1)
	monitoring.RecordRealtimeBroadcast("push")
	monitoring.RecordRealtimeFailure("push", "backpressure", "drop")
	monitoring.RecordMaintenanceRun("store_cleanup", "success", "", time.Second)

	summary := monitoring.Snapshot()
	require.Len(t, summary.Caches, 2)
	require.Equal(t, "database", summary.Caches[0].Tier)
	require.Equal(t, uint64(1), summary.Caches[1].Hits)
	require.Equal(t, uint64(1), summary.Caches[1].Misses)
	require.Equal(t, uint64(1), summary.Strategies["network_first/cache"])
	require.Equal(t, uint64(1), summary.Sync.Passes)
	require.Equal(t, uint64(1), summary.Sync.Skipped)
	require.Equal(t, uint64(2), summary.Sync.Pushed)
	require.Equal(t, uint64(1), summary.Sync.Rejected)
	require.Equal(t, int64(4), summary.Sync.QueuePending)
	require.True(t, summary.Connectivity.Online)
	require.Equal(t, uint64(1), summary.Connectivity.Transitions)
	require.Equal(t, int64(1), summary.Realtime.ActiveConnections)
	require.GreaterOrEqual(t, summary.Realtime.Failures, uint64(1))
	require.NotEmpty(t, summary.Maintenance.Jobs)
}

func TestHandlerExposesCollectors(t *testing.T) {
	mod := setupModule(t)
	monitoring.RecordCacheLookup("redis", false)

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "dealcache_cache_lookups_total"))
}

func TestHealthEvaluateConcurrentChecks(t *testing.T) {
	t.Parallel()

	health := monitoring.NewHealth(50 * time.Millisecond)
	health.Register(monitoring.Readiness,
		monitoring.NewCheck("database", func(context.Context) monitoring.Result {
			return monitoring.Result{Status: monitoring.StatusUp}
		}),
		monitoring.NewCheck("slow", func(ctx context.Context) monitoring.Result {
			<-ctx.Done()
			return monitoring.ErrorResult(ctx.Err())
		}),
		monitoring.NewCheck("panics", func(context.Context) monitoring.Result {
			panic("boom")
		}),
	)

	report := health.Evaluate(context.Background(), monitoring.Readiness)
	require.False(t, report.Ready)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 3)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, monitoring.StatusDegraded, report.Checks[1].Status)
	require.Equal(t, "boom", report.Checks[2].Details)

	empty := health.Evaluate(context.Background(), monitoring.Liveness)
	require.True(t, empty.Ready)
	require.Empty(t, empty.Checks)
}

func TestDegradedReportStaysReady(t *testing.T) {
	t.Parallel()

	live := monitoring.Report{Checks: []monitoring.Result{{Component: "database", Status: monitoring.StatusUp}}}
	ready := monitoring.Report{Checks: []monitoring.Result{{Component: "connectivity", Status: monitoring.StatusDegraded}}}

	report := monitoring.Combine(live, ready)
	require.True(t, report.Ready)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
}

func TestMaintenanceCheck(t *testing.T) {
	setupModule(t)

	monitoring.RecordMaintenanceRun("store_cleanup", "success", "", time.Second)
	monitoring.RecordMaintenanceRun("hot_refresh", "failure", "timeout", time.Second)

	result := checks.Maintenance(0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "hot_refresh: timeout")
}

func TestSyncQueueCheck(t *testing.T) {
	setupModule(t)

	monitoring.SetQueueDepth(3, 0)
	require.Equal(t, monitoring.StatusUp, checks.SyncQueue().Run(context.Background()).Status)

	monitoring.SetQueueDepth(3, 2)
	result := checks.SyncQueue().Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Equal(t, "2 stalled, 3 pending", result.Details)
}

type staticReachability bool

func (s staticReachability) IsOnline() bool { return bool(s) }

func TestConnectivityCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, checks.Connectivity(staticReachability(true)).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Connectivity(staticReachability(false)).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Connectivity(nil).Run(context.Background()).Status)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, checks.Redis(nil, false).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(nil, true).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(failingPinger{}, true).Run(context.Background()).Status)
}

func TestDatabaseCheckReportsDialect(t *testing.T) {
	t.Parallel()

	db := testutil.NewBareDB(t)
	result := checks.Database(db).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "sqlite")

	require.Equal(t, monitoring.StatusDown, checks.Database(nil).Run(context.Background()).Status)
}
