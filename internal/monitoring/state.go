package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	caches     sync.Map // string -> *cacheStats
	strategies sync.Map // "strategy/source" -> *atomic.Uint64

	syncPasses    atomic.Uint64
	syncSkipped   atomic.Uint64
	syncFailed    atomic.Uint64
	syncPushed    atomic.Uint64
	syncRejected  atomic.Uint64
	syncLastRun   atomic.Int64 // unix nano
	syncLastTook  atomic.Int64 // nanoseconds
	queuePending  atomic.Int64
	queueStalled  atomic.Int64
	online        atomic.Bool
	transitions   atomic.Uint64
	lastChangedAt atomic.Int64

	realtimeConnections atomic.Int64
	realtimeBroadcasts  atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Value // *FailureRecord

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.realtimeLastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.realtimeLastFailure.Load().(*FailureRecord)

	return Summary{
		GeneratedAt: time.Now(),
		Caches:      s.cloneCaches(),
		Strategies:  s.cloneStrategies(),
		Sync: SyncSummary{
			Passes:       s.syncPasses.Load(),
			Skipped:      s.syncSkipped.Load(),
			Failed:       s.syncFailed.Load(),
			Pushed:       s.syncPushed.Load(),
			Rejected:     s.syncRejected.Load(),
			LastRunAt:    unixNano(s.syncLastRun.Load()),
			LastDuration: time.Duration(s.syncLastTook.Load()),
			QueuePending: s.queuePending.Load(),
			QueueStalled: s.queueStalled.Load(),
		},
		Connectivity: ConnectivitySummary{
			Online:        s.online.Load(),
			Transitions:   s.transitions.Load(),
			LastChangedAt: unixNano(s.lastChangedAt.Load()),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Broadcasts:        s.realtimeBroadcasts.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       lastFailure,
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) cloneCaches() []CacheSummary {
	summaries := []CacheSummary{}
	s.caches.Range(func(key, value any) bool {
		stats := value.(*cacheStats)
		summaries = append(summaries, CacheSummary{
			Tier:   key.(string),
			Hits:   stats.hits.Load(),
			Misses: stats.misses.Load(),
		})
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Tier < summaries[j].Tier })
	return summaries
}

func (s *statStore) cloneStrategies() map[string]uint64 {
	out := map[string]uint64{}
	s.strategies.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) cacheEntry(tier string) *cacheStats {
	value, ok := s.caches.Load(tier)
	if ok {
		return value.(*cacheStats)
	}
	actual, _ := s.caches.LoadOrStore(tier, &cacheStats{})
	return actual.(*cacheStats)
}

func (s *statStore) recordStrategy(strategy, source string) {
	key := strategy + "/" + source
	value, ok := s.strategies.Load(key)
	if !ok {
		value, _ = s.strategies.LoadOrStore(key, &atomic.Uint64{})
	}
	value.(*atomic.Uint64).Add(1)
}

func (s *statStore) recordSyncPass(result string, d time.Duration) {
	switch result {
	case "skipped":
		s.syncSkipped.Add(1)
		return
	case "failure":
		s.syncFailed.Add(1)
	}
	s.syncPasses.Add(1)
	s.syncLastRun.Store(time.Now().UnixNano())
	s.syncLastTook.Store(int64(d))
}

func (s *statStore) recordSyncItems(succeeded, failed int) {
	if succeeded > 0 {
		s.syncPushed.Add(uint64(succeeded))
	}
	if failed > 0 {
		s.syncRejected.Add(uint64(failed))
	}
}

func (s *statStore) recordConnectivity(online, changed bool) {
	s.online.Store(online)
	if changed {
		s.transitions.Add(1)
		s.lastChangedAt.Store(time.Now().UnixNano())
	}
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	cloned := record
	s.realtimeLastFailure.Store(&cloned)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type cacheStats struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *cacheStats) record(hit bool) {
	if hit {
		c.hits.Add(1)
		return
	}
	c.misses.Add(1)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           unixNano(m.lastRun.Load()),
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       unixNano(m.lastSuccessfulRun.Load()),
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	case "skipped":
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}

func unixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}
