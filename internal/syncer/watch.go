package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/realtime"
)

// Watch runs a pass each time connectivity comes back, and relays every transition on the
// connectivity stream. It returns when ctx is done.
func (e *Engine) Watch(ctx context.Context) {
	transitions, cancel := e.monitor.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			e.relay(t)
			if !t.Online {
				continue
			}
			if _, err := e.Synchronize(ctx); err != nil && ctx.Err() == nil {
				e.log.Warn("synchronisation after reconnect failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) relay(t connectivity.Transition) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish("", realtime.Message{
		Stream: realtime.StreamConnectivity,
		Event:  "connectivity.changed",
		Data:   t,
	})
}
