package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/api"
	"github.com/charlesng35/dealcache/internal/app"
	"github.com/charlesng35/dealcache/internal/app/maintenance"
	"github.com/charlesng35/dealcache/internal/cache"
	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/database"
	"github.com/charlesng35/dealcache/internal/gateway"
	"github.com/charlesng35/dealcache/internal/middleware"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/monitoring/checks"
	"github.com/charlesng35/dealcache/internal/netcache"
	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/syncer"
	"github.com/charlesng35/dealcache/pkg/logger"
)

// rateStoreMB sizes the in-memory rate limit counters used when Redis is not configured.
const rateStoreMB = 1

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisStore
	Monitoring *monitoring.Module
	Monitor    *connectivity.Monitor
	Hub        *realtime.Hub
	Client     *offline.Client
	Engine     *syncer.Engine
	Proxy      *netcache.Proxy
	Prober     *connectivity.Prober
	Cleaner    *maintenance.Cleaner
	Counters   middleware.Counter
	Router     *gin.Engine

	stopWatch context.CancelFunc
	watchDone sync.WaitGroup
}

// bootstrapRuntime initialises storage, caches, the sync engine, the network cache and the
// HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Monitoring.Prometheus.Enabled || cfg.Monitoring.Health.Enabled {
		stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
		if err != nil {
			return nil, fmt.Errorf("initialise monitoring: %w", err)
		}
		monitoring.SetModule(stack.Monitoring)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed api cache", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Monitor = connectivity.NewMonitor(cfg.Connectivity.InitialOnline)
	stack.Hub = realtime.NewHub()

	clientOpts := []offline.Option{
		offline.WithDB(stack.DB),
		offline.WithMonitor(stack.Monitor),
		offline.WithPublisher(stack.Hub),
	}
	if stack.Redis != nil {
		clientOpts = append(clientOpts, offline.WithAPICacheStore(stack.Redis))
	}
	stack.Client = offline.NewClient(clientOpts...)
	if err := stack.Client.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialise offline store: %w", err)
	}

	if stack.Engine, err = buildEngine(cfg, stack); err != nil {
		return nil, err
	}
	if stack.Engine == nil {
		log.Warn("gateway.base_url is not configured; synchronisation disabled")
	}

	if cfg.NetCache.Enabled {
		if stack.Proxy, err = buildProxy(ctx, cfg, stack.DB, log); err != nil {
			return nil, err
		}
	}

	if url := strings.TrimSpace(cfg.Connectivity.ProbeURL); url != "" {
		stack.Prober, err = connectivity.NewProber(url, stack.Monitor, cfg.Connectivity.ProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("initialise connectivity prober: %w", err)
		}
	}

	registerHealthChecks(cfg, stack)

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(cleanerOptions(cfg, stack)...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if stack.Engine != nil && cfg.Sync.OnReconnect {
		watchCtx, cancel := context.WithCancel(context.Background())
		stack.stopWatch = cancel
		stack.watchDone.Add(1)
		go func() {
			defer stack.watchDone.Done()
			stack.Engine.Watch(watchCtx)
		}()
	}

	if stack.Redis != nil {
		stack.Counters = stack.Redis
	} else {
		stack.Counters = cache.NewMemoryStore(rateStoreMB)
	}

	deps := api.Dependencies{
		Config:     cfg,
		Client:     stack.Client,
		Hub:        stack.Hub,
		Monitoring: stack.Monitoring,
		Counters:   stack.Counters,
	}
	if stack.Engine != nil {
		deps.Sync = stack.Engine
	}
	if stack.Proxy != nil {
		deps.Proxy = stack.Proxy
	}
	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func buildEngine(cfg *app.Config, stack *runtimeStack) (*syncer.Engine, error) {
	gwOpts := cfg.Gateway.ClientOptions(cfg.Device.ID)
	if gwOpts.BaseURL == "" {
		return nil, nil
	}
	gw, err := gateway.NewHTTPGateway(gwOpts)
	if err != nil {
		return nil, fmt.Errorf("initialise gateway: %w", err)
	}

	saved, favorites, actions, queue, err := stack.Client.Stores()
	if err != nil {
		return nil, fmt.Errorf("open sync stores: %w", err)
	}
	engine, err := syncer.NewEngine(syncer.Stores{
		Saved:     saved,
		Favorites: favorites,
		Actions:   actions,
		Queue:     queue,
	}, gw, stack.Monitor,
		syncer.WithPublisher(stack.Hub),
		syncer.WithBatchSizes(cfg.Sync.ActionBatch, cfg.Sync.QueueBatch),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise sync engine: %w", err)
	}
	return engine, nil
}

// buildProxy opens the response cache, precaches the shell and activates the configured
// version. Install failures are logged: the daemon starts offline and fills the cache lazily.
func buildProxy(ctx context.Context, cfg *app.Config, db *gorm.DB, log *zap.Logger) (*netcache.Proxy, error) {
	compressor, err := cache.NewZstdCompressor()
	if err != nil {
		return nil, fmt.Errorf("initialise compressor: %w", err)
	}
	storage, err := netcache.NewStorage(db, cfg.NetCache.MemoryMB,
		netcache.WithFrontTTL(cfg.NetCache.FrontTTL),
		netcache.WithCompressor(compressor),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise response storage: %w", err)
	}

	proxy, err := netcache.New(storage, cfg.NetCache.ProxyOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise network cache: %w", err)
	}

	if report, err := proxy.Install(ctx); err != nil {
		log.Warn("network cache install failed; continuing with existing entries", zap.Error(err))
	} else {
		log.Info("network cache installed", zap.Int("static", report.Static), zap.Int("api", report.API))
	}

	activated, err := proxy.Activate(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate network cache: %w", err)
	}
	if previous := activated.Previous; previous != "" && previous != activated.Version {
		log.Info("network cache version changed",
			zap.String("previous", previous),
			zap.String("version", activated.Version),
			zap.Strings("removed", activated.Removed),
		)
	}
	return proxy, nil
}

func registerHealthChecks(cfg *app.Config, stack *runtimeStack) {
	if stack.Monitoring == nil || !cfg.Monitoring.Health.Enabled {
		return
	}
	var redis checks.Pinger
	if stack.Redis != nil {
		redis = stack.Redis
	}
	health := stack.Monitoring.Health()
	health.Register(monitoring.Liveness, checks.Database(stack.DB))
	health.Register(monitoring.Readiness,
		checks.Database(stack.DB),
		checks.Redis(redis, cfg.Cache.Redis.Enabled),
		checks.Connectivity(stack.Monitor),
		checks.SyncQueue(),
		checks.Maintenance(0),
		checks.Realtime(stack.Hub),
	)
}

func cleanerOptions(cfg *app.Config, stack *runtimeStack) []maintenance.Option {
	m := cfg.Maintenance
	opts := []maintenance.Option{
		maintenance.WithStore(stack.Client),
		maintenance.WithReachability(stack.Monitor),
		maintenance.WithDealRetentionDays(m.DealRetentionDays),
		maintenance.WithAPIMaxAge(cfg.NetCache.APIMaxAge),
		maintenance.WithSchedules(maintenance.Schedules{
			StoreCleanup: scheduleOrDisabled(m.StoreCleanup),
			DealCleanup:  scheduleOrDisabled(m.DealCleanup),
			APICleanup:   scheduleOrDisabled(m.APICleanup),
			HotRefresh:   scheduleOrDisabled(m.HotRefresh),
			Sync:         scheduleOrDisabled(m.Sync),
			Probe:        scheduleOrDisabled(m.Probe),
		}),
	}
	if stack.Proxy != nil {
		opts = append(opts, maintenance.WithNetCache(stack.Proxy))
	}
	if stack.Engine != nil {
		opts = append(opts, maintenance.WithSynchronizer(stack.Engine))
	}
	if stack.Prober != nil {
		opts = append(opts, maintenance.WithProber(stack.Prober))
	}
	return opts
}

// scheduleOrDisabled maps an empty configured schedule onto the cleaner's disabled marker.
func scheduleOrDisabled(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "-"
	}
	return spec
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.stopWatch != nil {
		s.stopWatch()
		s.watchDone.Wait()
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Proxy != nil {
		s.Proxy.Wait()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			log.Warn("offline store shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

// newServer binds the router to the configured loopback address.
func newServer(cfg *app.Config, handler http.Handler) (*http.Server, error) {
	if handler == nil {
		return nil, errors.New("router is required")
	}
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}
