package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	cacheLookups          *prometheus.CounterVec
	strategyOutcomes      *prometheus.CounterVec
	apiLatency            *prometheus.HistogramVec
	syncPasses            *prometheus.CounterVec
	syncItems             *prometheus.CounterVec
	syncDuration          *prometheus.HistogramVec
	queueDepth            *prometheus.GaugeVec
	connectivityOnline    *prometheus.GaugeVec
	connectivityChanges   *prometheus.CounterVec
	realtimeConnections   *prometheus.GaugeVec
	realtimeBroadcasts    *prometheus.CounterVec
	realtimeFailures      *prometheus.CounterVec
	realtimeSubscriptions *prometheus.CounterVec
	maintenanceRuns       *prometheus.CounterVec
	maintenanceDuration   *prometheus.HistogramVec
	maintenanceLastRun    *prometheus.GaugeVec
}

func newMetricSet(ns string) *metricSet {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: name, Help: help, Buckets: prometheus.DefBuckets,
		}, labels)
	}

	return &metricSet{
		cacheLookups:     counter("cache_lookups_total", "Cache lookups by tier and result", "tier", "result"),
		strategyOutcomes: counter("netcache_responses_total", "Network cache responses by strategy and source", "strategy", "source"),
		apiLatency:       histogram("api_latency_seconds", "Local API endpoint latency", "method", "path", "status"),

		syncPasses:   counter("sync_passes_total", "Synchronisation passes by outcome", "result"),
		syncItems:    counter("sync_items_total", "Records pushed to the remote API by phase and result", "phase", "result"),
		syncDuration: histogram("sync_duration_seconds", "Duration of synchronisation passes"),
		queueDepth:   gauge("sync_queue_depth", "Sync queue rows by state (pending, stalled)", "state"),

		connectivityOnline:  gauge("connectivity_online", "1 when the remote API is considered reachable"),
		connectivityChanges: counter("connectivity_transitions_total", "Reachability transitions by target state", "state"),

		realtimeConnections:   gauge("realtime_connections", "Open realtime websocket connections"),
		realtimeBroadcasts:    counter("realtime_broadcasts_total", "Messages published per realtime stream", "stream"),
		realtimeFailures:      counter("realtime_failures_total", "Realtime delivery or handshake failures", "stream", "type"),
		realtimeSubscriptions: counter("realtime_subscriptions_total", "Realtime subscribe/unsubscribe events", "stream", "action"),

		maintenanceRuns:     counter("maintenance_runs_total", "Maintenance job executions", "job", "result"),
		maintenanceDuration: histogram("maintenance_duration_seconds", "Maintenance job duration", "job"),
		maintenanceLastRun:  gauge("maintenance_last_success_timestamp", "Unix time of the last successful maintenance run", "job"),
	}
}

func (m *metricSet) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.cacheLookups, m.strategyOutcomes, m.apiLatency,
		m.syncPasses, m.syncItems, m.syncDuration, m.queueDepth,
		m.connectivityOnline, m.connectivityChanges,
		m.realtimeConnections, m.realtimeBroadcasts, m.realtimeFailures, m.realtimeSubscriptions,
		m.maintenanceRuns, m.maintenanceDuration, m.maintenanceLastRun,
	}
}

func observeSeconds(observer prometheus.Observer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
