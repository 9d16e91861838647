package cache

import (
	"context"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

// Instrumented wraps a Store and records hits and misses per tier.
type Instrumented struct {
	Store
	tier string
}

// NewInstrumented decorates store with lookup metrics under the supplied tier label.
func NewInstrumented(tier string, store Store) *Instrumented {
	return &Instrumented{Store: store, tier: tier}
}

func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := i.Store.Get(ctx, key)
	if err == nil {
		monitoring.RecordCacheLookup(i.tier, ok)
	}
	return value, ok, err
}

// Tier returns the label the store reports under.
func (i *Instrumented) Tier() string {
	return i.tier
}

var _ Store = (*Instrumented)(nil)

// compile-time checks for the concrete tiers.
var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
