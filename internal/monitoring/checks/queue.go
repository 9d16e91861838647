package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// SyncQueue degrades once queued operations have stalled after exhausting their retries.
// Stalled rows are never replayed, so they need an operator.
func SyncQueue() monitoring.Check {
	return monitoring.NewCheck("sync_queue", func(context.Context) monitoring.Result {
		sync := monitoring.Snapshot().Sync
		if sync.QueueStalled > 0 {
			return monitoring.Result{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%d stalled, %d pending", sync.QueueStalled, sync.QueuePending),
			}
		}
		return monitoring.Result{Status: monitoring.StatusUp, Details: fmt.Sprintf("%d pending", sync.QueuePending)}
	})
}
