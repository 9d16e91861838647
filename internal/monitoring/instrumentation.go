package monitoring

import (
	"strings"
	"time"
)

// with runs fn against the installed module. Recording is a no-op until SetModule is called.
func with(fn func(m *Module)) {
	if m := current.Load(); m != nil {
		fn(m)
	}
}

// RecordCacheLookup counts a hit or miss against a cache tier.
func RecordCacheLookup(tier string, hit bool) {
	with(func(m *Module) {
		tier = label(tier)
		result := "miss"
		if hit {
			result = "hit"
		}
		m.metrics.cacheLookups.WithLabelValues(tier, result).Inc()
		m.stats.cacheEntry(tier).record(hit)
	})
}

// RecordStrategyOutcome records where a network cache strategy sourced its response from
// (network, cache, stale, fallback, offline).
func RecordStrategyOutcome(strategy, source string) {
	with(func(m *Module) {
		strategy, source = label(strategy), label(source)
		m.metrics.strategyOutcomes.WithLabelValues(strategy, source).Inc()
		m.stats.recordStrategy(strategy, source)
	})
}

// ObserveAPILatency records the latency of a local API route.
func ObserveAPILatency(method, route, status string, d time.Duration) {
	with(func(m *Module) {
		method = strings.ToUpper(strings.TrimSpace(method))
		if method == "" {
			method = "UNKNOWN"
		}
		observeSeconds(m.metrics.apiLatency.WithLabelValues(method, routeLabel(route), label(status)), d)
	})
}

// RecordSyncPass records a finished, skipped or failed synchronisation pass. Skipped passes
// carry no duration.
func RecordSyncPass(result string, d time.Duration) {
	with(func(m *Module) {
		result = label(result)
		m.metrics.syncPasses.WithLabelValues(result).Inc()
		if result != "skipped" {
			observeSeconds(m.metrics.syncDuration.WithLabelValues(), d)
		}
		m.stats.recordSyncPass(result, d)
	})
}

// RecordSyncItems adds per-phase push outcomes.
func RecordSyncItems(phase string, succeeded, failed int) {
	with(func(m *Module) {
		phase = label(phase)
		if succeeded > 0 {
			m.metrics.syncItems.WithLabelValues(phase, "success").Add(float64(succeeded))
		}
		if failed > 0 {
			m.metrics.syncItems.WithLabelValues(phase, "failure").Add(float64(failed))
		}
		m.stats.recordSyncItems(succeeded, failed)
	})
}

// SetQueueDepth publishes the number of pending and stalled queue rows.
func SetQueueDepth(pending, stalled int64) {
	with(func(m *Module) {
		pending, stalled = max(pending, 0), max(stalled, 0)
		m.metrics.queueDepth.WithLabelValues("pending").Set(float64(pending))
		m.metrics.queueDepth.WithLabelValues("stalled").Set(float64(stalled))
		m.stats.queuePending.Store(pending)
		m.stats.queueStalled.Store(stalled)
	})
}

// RecordConnectivity publishes the reachability state. changed marks a transition.
func RecordConnectivity(online, changed bool) {
	with(func(m *Module) {
		state, value := "offline", 0.0
		if online {
			state, value = "online", 1
		}
		m.metrics.connectivityOnline.WithLabelValues().Set(value)
		if changed {
			m.metrics.connectivityChanges.WithLabelValues(state).Inc()
		}
		m.stats.recordConnectivity(online, changed)
	})
}

// SetRealtimeConnections publishes the number of open websocket clients.
func SetRealtimeConnections(n int64) {
	with(func(m *Module) {
		n = max(n, 0)
		m.metrics.realtimeConnections.WithLabelValues().Set(float64(n))
		m.stats.realtimeConnections.Store(n)
	})
}

// RecordRealtimeSubscription counts subscribe and unsubscribe events.
func RecordRealtimeSubscription(stream, action string) {
	with(func(m *Module) {
		m.metrics.realtimeSubscriptions.WithLabelValues(label(stream), label(action)).Inc()
	})
}

// RecordRealtimeBroadcast counts a published message.
func RecordRealtimeBroadcast(stream string) {
	with(func(m *Module) {
		m.metrics.realtimeBroadcasts.WithLabelValues(label(stream)).Inc()
		m.stats.realtimeBroadcasts.Add(1)
	})
}

// RecordRealtimeFailure counts a failure and keeps it as the most recent one.
func RecordRealtimeFailure(stream, kind, message string) {
	with(func(m *Module) {
		stream, kind = label(stream), label(kind)
		m.metrics.realtimeFailures.WithLabelValues(stream, kind).Inc()
		m.stats.recordRealtimeFailure(FailureRecord{
			Stream:   stream,
			Type:     kind,
			Message:  strings.TrimSpace(message),
			Occurred: time.Now(),
		})
	})
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, d time.Duration) {
	with(func(m *Module) {
		job, result = label(job), label(result)
		m.metrics.maintenanceRuns.WithLabelValues(job, result).Inc()
		observeSeconds(m.metrics.maintenanceDuration.WithLabelValues(job), d)
		if result == "success" {
			m.metrics.maintenanceLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
		}
		m.stats.maintenanceEntry(job).record(result, strings.TrimSpace(message), d)
	})
}

func label(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}

// routeLabel turns a gin route template into a label: "/local/users/:owner/saved" becomes
// "local/users/:owner/saved" and "/" becomes "root".
func routeLabel(route string) string {
	route = strings.TrimSpace(route)
	switch route {
	case "":
		return "unmatched"
	case "/":
		return "root"
	}
	return strings.ReplaceAll(strings.Trim(route, "/"), " ", "_")
}
