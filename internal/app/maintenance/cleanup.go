package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/services"
	"github.com/charlesng35/dealcache/internal/syncer"
	"github.com/charlesng35/dealcache/pkg/logger"
)

// Job names, also used as metric labels.
const (
	JobStoreCleanup = "store_cleanup"
	JobDealCleanup  = "deal_cleanup"
	JobAPICleanup   = "api_cleanup"
	JobHotRefresh   = "hot_refresh"
	JobSync         = "sync"
	JobProbe        = "connectivity_probe"
)

const (
	defaultStoreSpec    = "@hourly"
	defaultDealSpec     = "@daily"
	defaultAPISpec      = "@daily"
	defaultHotSpec      = "@every 5m"
	defaultSyncSpec     = "@every 1m"
	defaultProbeSpec    = "@every 15s"
	defaultDealDays     = 30
	defaultJobTimeout   = 2 * time.Minute
	resultSuccess       = "success"
	resultFailure       = "failure"
	resultSkipped       = "skipped"
	resultOfflineMarker = "offline"
)

// Store is the local structured store as seen by maintenance.
type Store interface {
	Cleanup(ctx context.Context) (services.CleanupResult, error)
	ClearOldCache(ctx context.Context, daysOld int) (int64, error)
}

// NetCache is the network response cache as seen by maintenance.
type NetCache interface {
	CleanupAPI(ctx context.Context, maxAge time.Duration) (int64, error)
	RefreshHot(ctx context.Context) (int, error)
}

// Synchronizer runs one sync pass.
type Synchronizer interface {
	Synchronize(ctx context.Context) (syncer.Report, error)
}

// Prober checks remote reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// Reachability gates jobs that need the network.
type Reachability interface {
	IsOnline() bool
}

// Schedules holds cron specifications per job. Empty values keep the defaults; "-" disables a job.
type Schedules struct {
	StoreCleanup string
	DealCleanup  string
	APICleanup   string
	HotRefresh   string
	Sync         string
	Probe        string
}

// Cleaner coordinates background maintenance: store cleanup, cache expiry, hot endpoint refresh,
// periodic sync and connectivity probing.
type Cleaner struct {
	store    Store
	netcache NetCache
	sync     Synchronizer
	prober   Prober
	online   Reachability

	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	schedules Schedules
	dealDays  int
	apiMaxAge time.Duration
	timeout   time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to time jobs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithStore enables the store and cached deal cleanups.
func WithStore(store Store) Option {
	return func(cleaner *Cleaner) { cleaner.store = store }
}

// WithNetCache enables API cache expiry and hot endpoint refresh.
func WithNetCache(nc NetCache) Option {
	return func(cleaner *Cleaner) { cleaner.netcache = nc }
}

// WithSynchronizer enables the periodic sync pass.
func WithSynchronizer(s Synchronizer) Option {
	return func(cleaner *Cleaner) { cleaner.sync = s }
}

// WithProber enables periodic connectivity probing.
func WithProber(p Prober) Option {
	return func(cleaner *Cleaner) { cleaner.prober = p }
}

// WithReachability skips the hot refresh while offline.
func WithReachability(r Reachability) Option {
	return func(cleaner *Cleaner) { cleaner.online = r }
}

// WithSchedules overrides the cron specifications of individual jobs.
func WithSchedules(s Schedules) Option {
	return func(cleaner *Cleaner) {
		merge := func(dst *string, src string) {
			if src != "" {
				*dst = src
			}
		}
		merge(&cleaner.schedules.StoreCleanup, s.StoreCleanup)
		merge(&cleaner.schedules.DealCleanup, s.DealCleanup)
		merge(&cleaner.schedules.APICleanup, s.APICleanup)
		merge(&cleaner.schedules.HotRefresh, s.HotRefresh)
		merge(&cleaner.schedules.Sync, s.Sync)
		merge(&cleaner.schedules.Probe, s.Probe)
	}
}

// WithDealRetentionDays adjusts how long cached deals are kept.
func WithDealRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.dealDays = days
		}
	}
}

// WithAPIMaxAge adjusts the age after which network-cached API responses are dropped.
// Zero keeps the proxy's configured maximum.
func WithAPIMaxAge(maxAge time.Duration) Option {
	return func(cleaner *Cleaner) { cleaner.apiMaxAge = maxAge }
}

// NewCleaner constructs a Cleaner. Jobs whose dependency is not provided are skipped.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		now:      time.Now,
		dealDays: defaultDealDays,
		timeout:  defaultJobTimeout,
		log:      logger.WithModule("maintenance"),
		schedules: Schedules{
			StoreCleanup: defaultStoreSpec,
			DealCleanup:  defaultDealSpec,
			APICleanup:   defaultAPISpec,
			HotRefresh:   defaultHotSpec,
			Sync:         defaultSyncSpec,
			Probe:        defaultProbeSpec,
		},
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (string, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.store != nil {
		jobs = append(jobs,
			job{JobStoreCleanup, c.schedules.StoreCleanup, c.cleanupStore},
			job{JobDealCleanup, c.schedules.DealCleanup, c.cleanupDeals},
		)
	}
	if c.netcache != nil {
		jobs = append(jobs,
			job{JobAPICleanup, c.schedules.APICleanup, c.cleanupAPI},
			job{JobHotRefresh, c.schedules.HotRefresh, c.refreshHot},
		)
	}
	if c.sync != nil {
		jobs = append(jobs, job{JobSync, c.schedules.Sync, c.synchronize})
	}
	if c.prober != nil {
		jobs = append(jobs, job{JobProbe, c.schedules.Probe, c.probe})
	}
	return jobs
}

// Start registers the enabled jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	registered := 0
	for _, j := range c.jobs() {
		if j.spec == "-" {
			continue
		}
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if err := c.execute(ctx, j); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s %q: %w", j.name, j.spec, err)
		}
		registered++
	}
	if registered == 0 {
		return nil
	}
	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// Run executes a single job by name.
func (c *Cleaner) Run(ctx context.Context, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, j := range c.jobs() {
		if j.name == name {
			return c.execute(ctx, j)
		}
	}
	return fmt.Errorf("maintenance: job %q is not configured", name)
}

// RunOnce executes the local cleanup jobs sequentially. Jobs that need the network are left
// to the scheduler. Used during graceful shutdown and by the cleanup endpoint.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		switch j.name {
		case JobStoreCleanup, JobDealCleanup, JobAPICleanup:
			errs = multierr.Append(errs, c.execute(ctx, j))
		}
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := c.now()
	message, err := j.run(ctx)
	duration := c.now().Sub(start)

	result := resultSuccess
	switch {
	case errors.Is(err, errSkipped):
		result, err = resultSkipped, nil
	case err != nil:
		result, message = resultFailure, err.Error()
	}
	monitoring.RecordMaintenanceRun(j.name, result, message, duration)
	if err != nil {
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}
	c.log.Debug("maintenance job finished",
		zap.String("job", j.name),
		zap.String("result", result),
		zap.String("detail", message),
		zap.Duration("duration", duration),
	)
	return nil
}

var errSkipped = errors.New("skipped")

func (c *Cleaner) cleanupStore(ctx context.Context) (string, error) {
	res, err := c.store.Cleanup(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("expired api entries %d, pruned listings %d", res.ExpiredAPIEntries, res.PrunedListings), nil
}

func (c *Cleaner) cleanupDeals(ctx context.Context) (string, error) {
	removed, err := c.store.ClearOldCache(ctx, c.dealDays)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("removed %d deals older than %d days", removed, c.dealDays), nil
}

func (c *Cleaner) cleanupAPI(ctx context.Context) (string, error) {
	removed, err := c.netcache.CleanupAPI(ctx, c.apiMaxAge)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("removed %d api responses", removed), nil
}

func (c *Cleaner) refreshHot(ctx context.Context) (string, error) {
	if c.online != nil && !c.online.IsOnline() {
		return resultOfflineMarker, errSkipped
	}
	refreshed, err := c.netcache.RefreshHot(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("refreshed %d endpoints", refreshed), nil
}

func (c *Cleaner) synchronize(ctx context.Context) (string, error) {
	report, err := c.sync.Synchronize(ctx)
	if err != nil {
		return "", err
	}
	if report.Skipped {
		return report.Reason, errSkipped
	}
	if failed := report.Failed(); failed > 0 {
		return fmt.Sprintf("%d items failed", failed), nil
	}
	return "", nil
}

// An unreachable remote is a valid probe outcome, not a job failure.
func (c *Cleaner) probe(ctx context.Context) (string, error) {
	if err := c.prober.Probe(ctx); err != nil {
		return resultOfflineMarker + ": " + err.Error(), nil
	}
	return "online", nil
}
