package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// ClientCounter is implemented by the realtime hub.
type ClientCounter interface {
	Clients() int64
}

// Realtime reports the hub's client count and degrades after delivery failures.
func Realtime(hub ClientCounter) monitoring.Check {
	return monitoring.NewCheck("realtime", func(context.Context) monitoring.Result {
		if hub == nil {
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "hub unavailable"}
		}
		details := fmt.Sprintf("%d clients", hub.Clients())
		rt := monitoring.Snapshot().Realtime
		if rt.LastFailure != nil {
			return monitoring.Result{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%s; %d failures, last: %s %s", details, rt.Failures, rt.LastFailure.Type, rt.LastFailure.Message),
			}
		}
		return monitoring.Result{Status: monitoring.StatusUp, Details: details}
	})
}
