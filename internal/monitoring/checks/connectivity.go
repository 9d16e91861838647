package checks

import (
	"context"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// Reachability reports whether the remote API is currently reachable.
type Reachability interface {
	IsOnline() bool
}

// Connectivity degrades while the remote API is unreachable. It never reports down.
func Connectivity(r Reachability) monitoring.Check {
	return monitoring.NewCheck("connectivity", func(context.Context) monitoring.Result {
		switch {
		case r == nil:
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "no connectivity monitor"}
		case !r.IsOnline():
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "remote api unreachable, serving offline"}
		}
		return monitoring.Result{Status: monitoring.StatusUp}
	})
}
