package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance is down while any job keeps failing and degraded when a job has not run within
// maxAge (6h when zero). Jobs that have not run yet are ignored.
func Maintenance(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}
	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.Result {
		now := time.Now()
		status := monitoring.StatusUp
		var notes []string
		for _, job := range monitoring.Snapshot().Maintenance.Jobs {
			switch {
			case job.TotalRuns == 0:
			case job.ConsecutiveFailures > 0:
				status = monitoring.Worse(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": "+job.LastError)
			case now.Sub(job.LastRunAt) > maxAge:
				status = monitoring.Worse(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": last ran "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}
		return monitoring.Result{Status: status, Details: strings.Join(notes, "; ")}
	})
}
