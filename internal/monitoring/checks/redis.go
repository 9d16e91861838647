package checks

import (
	"context"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// Pinger is implemented by the Redis cache tier.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the optional Redis tier. The API response cache falls back to the database
// when Redis is gone, so failures only degrade.
func Redis(client Pinger, enabled bool) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.Result {
		switch {
		case !enabled:
			return monitoring.Result{Status: monitoring.StatusUp, Details: "disabled"}
		case client == nil:
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "unavailable, using database cache"}
		}
		if err := client.Ping(ctx); err != nil {
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: err.Error()}
		}
		return monitoring.Result{Status: monitoring.StatusUp}
	})
}
