package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the local status endpoint.
type Summary struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Caches       []CacheSummary      `json:"caches"`
	Strategies   map[string]uint64   `json:"strategies"`
	Sync         SyncSummary         `json:"sync"`
	Connectivity ConnectivitySummary `json:"connectivity"`
	Realtime     RealtimeSummary     `json:"realtime"`
	Maintenance  MaintenanceSummary  `json:"maintenance"`
}

type CacheSummary struct {
	Tier   string `json:"tier"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

type SyncSummary struct {
	Passes       uint64        `json:"passes"`
	Skipped      uint64        `json:"skipped"`
	Failed       uint64        `json:"failed"`
	Pushed       uint64        `json:"pushed"`
	Rejected     uint64        `json:"rejected"`
	LastRunAt    time.Time     `json:"last_run_at"`
	LastDuration time.Duration `json:"last_duration"`
	QueuePending int64         `json:"queue_pending"`
	QueueStalled int64         `json:"queue_stalled"`
}

type ConnectivitySummary struct {
	Online        bool      `json:"online"`
	Transitions   uint64    `json:"transitions"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns the summary of the installed module.
func Snapshot() Summary {
	return CurrentModule().Summary()
}
