package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/app"
	"github.com/charlesng35/dealcache/internal/handlers"
	"github.com/charlesng35/dealcache/internal/middleware"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/offline"
	"github.com/charlesng35/dealcache/internal/realtime"
)

const (
	writeLimit  = 30
	writeWindow = time.Minute
)

// Dependencies bundles what the router serves. Proxy, Sync, Hub, Monitoring and Counters are
// optional.
type Dependencies struct {
	Config     *app.Config
	Client     *offline.Client
	Sync       handlers.Synchronizer
	Proxy      http.Handler
	Hub        *realtime.Hub
	Monitoring *monitoring.Module
	Counters   middleware.Counter
}

// NewRouter builds the Gin engine: the local JSON API under /local, health, metrics and the
// realtime socket. Every other request falls through to the network response cache.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Client == nil {
		return nil, errors.New("offline client must be provided")
	}
	cfg := deps.Config

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.Access())

	registerHealthRoutes(r, cfg.Monitoring.Health.Enabled, deps.Monitoring.Health())
	metrics := metricsPath(cfg, deps.Monitoring)
	if metrics != "" {
		r.GET(metrics, gin.WrapH(deps.Monitoring.Handler()))
	}

	if deps.Hub != nil {
		realtimeHandler, err := handlers.NewRealtimeHandler(deps.Hub)
		if err != nil {
			return nil, err
		}
		r.GET("/ws", realtimeHandler.Stream)
	}

	local := r.Group("/local")
	local.Use(middleware.SecurityHeaders())
	if err := registerLocalRoutes(local, deps); err != nil {
		return nil, err
	}

	if summary := handlers.NewMonitoringHandler(deps.Monitoring, metrics); summary != nil {
		local.GET("/monitoring/summary", summary.Summary)
	}

	if deps.Proxy != nil {
		r.NoRoute(gin.WrapH(deps.Proxy))
	} else {
		r.NoRoute(middleware.NotFoundHandler)
	}

	return r, nil
}

func registerLocalRoutes(local *gin.RouterGroup, deps Dependencies) error {
	limited := middleware.RateLimit(deps.Counters, writeLimit, writeWindow)

	saved, err := handlers.NewSavedItemHandler(deps.Client)
	if err != nil {
		return err
	}
	listings, err := handlers.NewListingHandler(deps.Client)
	if err != nil {
		return err
	}
	apiCache, err := handlers.NewAPICacheHandler(deps.Client)
	if err != nil {
		return err
	}
	prefs, err := handlers.NewPreferenceHandler(deps.Client)
	if err != nil {
		return err
	}
	favorites, err := handlers.NewFavoriteHandler(deps.Client)
	if err != nil {
		return err
	}
	syncHandler, err := handlers.NewSyncHandler(deps.Client, deps.Sync)
	if err != nil {
		return err
	}
	conn, err := handlers.NewConnectivityHandler(deps.Client.Monitor())
	if err != nil {
		return err
	}
	push, err := handlers.NewPushHandler(deps.Client)
	if err != nil {
		return err
	}

	users := local.Group("/users/:owner")
	{
		users.GET("/saved", saved.List)
		users.POST("/saved", saved.Save)
		users.GET("/saved/unsynced", saved.Unsynced)
		users.GET("/saved/:id", saved.IsSaved)
		users.DELETE("/saved/:id", saved.Remove)

		users.GET("/favorites", favorites.List)
		users.POST("/favorites", favorites.Add)
		users.DELETE("/favorites/:deal", favorites.Remove)

		users.POST("/actions", favorites.RecordAction)
		users.GET("/push", push.List)
	}
	local.POST("/saved/synced", saved.MarkSynced)

	local.POST("/listings", listings.CacheBatch)
	local.GET("/listings", listings.List)
	local.POST("/deals", listings.CacheDeal)
	local.GET("/deals", listings.Deals)
	local.DELETE("/deals", listings.ClearDeals)

	local.PUT("/api-cache", apiCache.Put)
	local.GET("/api-cache", apiCache.Get)

	local.PUT("/preferences/:key", prefs.Set)
	local.GET("/preferences/:key", prefs.Get)

	local.POST("/sync/queue", syncHandler.Enqueue)
	local.GET("/sync/queue/stalled", syncHandler.Stalled)
	local.POST("/sync", limited, syncHandler.Synchronize)
	local.GET("/stats", syncHandler.Stats)
	local.POST("/maintenance/cleanup", limited, syncHandler.Cleanup)

	local.GET("/connectivity", conn.Get)
	local.PUT("/connectivity", conn.Set)

	local.POST("/push", limited, push.Receive)
	local.POST("/push/:id/actions/:action", push.Act)

	return nil
}

// metricsPath is "" when Prometheus exposition is off.
func metricsPath(cfg *app.Config, mon *monitoring.Module) string {
	if mon == nil || !cfg.Monitoring.Prometheus.Enabled {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint); endpoint != "" {
		return endpoint
	}
	return "/metrics"
}
