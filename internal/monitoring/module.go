package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configure a Module.
type Options struct {
	// Namespace prefixes every metric. Defaults to "dealcache".
	Namespace string
	// CheckTimeout bounds each health check. Defaults to 3s.
	CheckTimeout time.Duration

	DisableGoCollector      bool
	DisableProcessCollector bool
}

// Module owns the daemon's metrics registry, its health checks and the counters behind the
// local monitoring summary.
type Module struct {
	registry *prometheus.Registry
	metrics  *metricSet
	stats    *statStore
	health   *Health
}

// NewModule builds a module with a private registry so tests can run side by side.
func NewModule(opts Options) (*Module, error) {
	if opts.Namespace == "" {
		opts.Namespace = "dealcache"
	}

	registry := prometheus.NewRegistry()
	var runtime []prometheus.Collector
	if !opts.DisableGoCollector {
		runtime = append(runtime, collectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		runtime = append(runtime, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	metrics := newMetricSet(opts.Namespace)
	for _, c := range append(runtime, metrics.all()...) {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealth(opts.CheckTimeout),
	}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Module) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Health returns the check registry.
func (m *Module) Health() *Health {
	if m == nil {
		return nil
	}
	return m.health
}

// Summary returns a point-in-time view of the counters.
func (m *Module) Summary() Summary {
	if m == nil {
		return Summary{GeneratedAt: time.Now()}
	}
	return m.stats.summary()
}

var current atomic.Pointer[Module]

// SetModule installs the module used by the package-level Record helpers. Nil is ignored.
func SetModule(module *Module) {
	if module != nil {
		current.Store(module)
	}
}

// CurrentModule returns the installed module, or nil.
func CurrentModule() *Module {
	return current.Load()
}
