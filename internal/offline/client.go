// Package offline exposes the local store as one explicitly constructed client.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/charlesng35/dealcache/internal/cache"
	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/database"
	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/services"
	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// Option configures a Client.
type Option func(*Client)

// WithDB uses an already opened and migrated database. Close leaves it open.
func WithDB(db *gorm.DB) Option {
	return func(c *Client) { c.db = db }
}

// WithDatabaseConfig opens and migrates a database during Init. Close closes it.
func WithDatabaseConfig(cfg database.Config) Option {
	return func(c *Client) { c.dbConfig = &cfg }
}

// WithMonitor sets the reachability source used to stamp saved items.
func WithMonitor(m *connectivity.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

// WithAPICacheStore replaces the database-backed API response cache, e.g. with Redis.
func WithAPICacheStore(store cache.Store) Option {
	return func(c *Client) { c.apiStore = store }
}

// WithPublisher sets where push notifications are announced.
func WithPublisher(p realtime.Publisher) Option {
	return func(c *Client) { c.publisher = p }
}

// WithClock overrides the time source of every service.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// Client is the local structured store. Every operation waits for the shared initialisation,
// so callers need not sequence against Init. Operations fail with ErrNotInitialised when
// initialisation failed or after Close.
type Client struct {
	db        *gorm.DB
	dbConfig  *database.Config
	ownsDB    bool
	monitor   *connectivity.Monitor
	apiStore  cache.Store
	publisher realtime.Publisher
	clock     func() time.Time

	initOnce sync.Once
	initErr  error

	mu     sync.RWMutex
	ready  bool
	closed bool

	queue     *services.SyncQueueService
	saved     *services.SavedItemService
	listings  *services.ListingCacheService
	apiCache  *services.APICacheService
	prefs     *services.PreferenceService
	favorites *services.FavoriteService
	actions   *services.ActionLogService
	stats     *services.StatsService
	cleaner   *services.StoreCleaner
	push      *services.PushService
}

// NewClient returns an uninitialised client.
func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.monitor == nil {
		c.monitor = connectivity.NewMonitor(false)
	}
	return c
}

// Init opens storage and builds the services. It runs once; later calls return the first result.
func (c *Client) Init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.initOnce.Do(func() {
		c.initErr = c.init(ctx)
	})
	return c.initErr
}

func (c *Client) init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.db == nil {
		if c.dbConfig == nil {
			return errors.New("offline: a database or database config is required")
		}
		db, err := database.OpenAndMigrate(*c.dbConfig)
		if err != nil {
			return fmt.Errorf("offline: open store: %w", err)
		}
		c.db = db
		c.ownsDB = true
	}

	clock := services.Clock(c.clock)
	if c.apiStore == nil {
		c.apiStore = cache.NewSQLStore(c.db, cache.Clock(c.clock))
	}

	var err error
	build := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}
	build(func() (e error) { c.queue, e = services.NewSyncQueueService(c.db, clock); return })
	build(func() (e error) { c.saved, e = services.NewSavedItemService(c.db, c.queue, c.monitor, clock); return })
	build(func() (e error) { c.listings, e = services.NewListingCacheService(c.db, clock); return })
	build(func() (e error) {
		c.apiCache, e = services.NewAPICacheService(cache.NewInstrumented("api_cache", c.apiStore), clock)
		return
	})
	build(func() (e error) { c.prefs, e = services.NewPreferenceService(c.db, clock); return })
	build(func() (e error) { c.favorites, e = services.NewFavoriteService(c.db, c.queue, clock); return })
	build(func() (e error) { c.actions, e = services.NewActionLogService(c.db, clock); return })
	build(func() (e error) { c.stats, e = services.NewStatsService(c.db); return })
	build(func() (e error) { c.cleaner, e = services.NewStoreCleaner(c.apiCache, c.listings, 0); return })
	build(func() (e error) { c.push, e = services.NewPushService(c.db, c.favorites, c.publisher, clock); return })
	if err != nil {
		if c.ownsDB {
			_ = database.Close(c.db)
		}
		return fmt.Errorf("offline: build services: %w", err)
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Close releases the database when the client opened it. Further operations fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.ready = false
	if c.ownsDB && c.db != nil {
		return database.Close(c.db)
	}
	return nil
}

// DB exposes the underlying handle for health checks and maintenance.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Monitor returns the reachability source.
func (c *Client) Monitor() *connectivity.Monitor {
	return c.monitor
}

// ensureReady waits for the shared initialisation, starting it if nobody has yet.
func (c *Client) ensureReady(ctx context.Context) error {
	c.mu.RLock()
	ready, closed := c.ready, c.closed
	c.mu.RUnlock()
	if ready {
		return nil
	}
	if closed {
		return apperrors.ErrNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.Init(ctx); err != nil {
		return apperrors.ErrNotInitialised.WithInternal(err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return apperrors.ErrNotInitialised
	}
	return nil
}

// Stores returns the services the sync engine drains.
func (c *Client) Stores() (saved *services.SavedItemService, favorites *services.FavoriteService, actions *services.ActionLogService, queue *services.SyncQueueService, err error) {
	if err = c.ensureReady(context.Background()); err != nil {
		return
	}
	return c.saved, c.favorites, c.actions, c.queue, nil
}

// SaveItem upserts a saved deal for ownerID.
func (c *Client) SaveItem(ctx context.Context, item json.RawMessage, ownerID string) (*models.SavedItem, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.saved.Save(ctx, ownerID, item)
}

// RemoveSavedItem deletes a saved deal by id.
func (c *Client) RemoveSavedItem(ctx context.Context, id, ownerID string) (bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return false, err
	}
	return c.saved.Remove(ctx, id, ownerID)
}

// ListSavedItems returns all deals saved by ownerID.
func (c *Client) ListSavedItems(ctx context.Context, ownerID string) ([]models.SavedItem, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.saved.List(ctx, ownerID)
}

// IsItemSaved reports whether ownerID saved id.
func (c *Client) IsItemSaved(ctx context.Context, id, ownerID string) (bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return false, err
	}
	return c.saved.IsSaved(ctx, id, ownerID)
}

// GetUnsyncedItems lists saved deals not yet acknowledged remotely.
func (c *Client) GetUnsyncedItems(ctx context.Context, ownerID string) ([]models.SavedItem, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.saved.Unsynced(ctx, ownerID)
}

// MarkItemsSynced flags saved deals as synced.
func (c *Client) MarkItemsSynced(ctx context.Context, ids []string) (int64, error) {
	if err := c.ensureReady(ctx); err != nil {
		return 0, err
	}
	return c.saved.MarkSynced(ctx, ids)
}

// CacheListingBatch stores a batch of listings under category.
func (c *Client) CacheListingBatch(ctx context.Context, items []json.RawMessage, category string) ([]models.CachedListing, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.listings.CacheBatch(ctx, items, category)
}

// GetCachedListings reads listings, most recently accessed first.
func (c *Client) GetCachedListings(ctx context.Context, category string, limit int) ([]models.CachedListing, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.listings.List(ctx, category, limit)
}

// CacheAPIResponse stores data for url with ttl.
func (c *Client) CacheAPIResponse(ctx context.Context, url string, data any, ttl time.Duration) (*services.APICacheEnvelope, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.apiCache.CacheResponse(ctx, url, data, ttl)
}

// GetCachedAPIResponse returns the unexpired payload for url.
func (c *Client) GetCachedAPIResponse(ctx context.Context, url string) (json.RawMessage, bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	return c.apiCache.CachedResponse(ctx, url)
}

// SetPreference upserts a preference.
func (c *Client) SetPreference(ctx context.Context, key string, value any) (*models.Preference, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.prefs.Set(ctx, key, value)
}

// GetPreference reads a preference.
func (c *Client) GetPreference(ctx context.Context, key string) (*models.Preference, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.prefs.Get(ctx, key)
}

// Cleanup purges expired API entries and prunes the listing cache.
func (c *Client) Cleanup(ctx context.Context) (services.CleanupResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return services.CleanupResult{}, err
	}
	return c.cleaner.Cleanup(ctx)
}

// CacheDeal upserts a single deal.
func (c *Client) CacheDeal(ctx context.Context, deal json.RawMessage) (*models.CachedListing, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.listings.CacheDeal(ctx, deal)
}

// GetCachedDeals returns deals, most recently updated first.
func (c *Client) GetCachedDeals(ctx context.Context, limit int) ([]models.CachedListing, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.listings.CachedDeals(ctx, limit)
}

// ClearOldCache drops deals not updated within daysOld days.
func (c *Client) ClearOldCache(ctx context.Context, daysOld int) (int64, error) {
	if err := c.ensureReady(ctx); err != nil {
		return 0, err
	}
	return c.listings.ClearOlderThan(ctx, daysOld)
}

// AddFavoriteOffline records a favorite until it is synced.
func (c *Client) AddFavoriteOffline(ctx context.Context, dealID, ownerID string) (*models.Favorite, bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	return c.favorites.AddOffline(ctx, dealID, ownerID)
}

// RemoveFavorite deletes a favorite.
func (c *Client) RemoveFavorite(ctx context.Context, dealID, ownerID string) (bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return false, err
	}
	return c.favorites.Remove(ctx, dealID, ownerID)
}

// GetOfflineFavorites lists favorited deal ids.
func (c *Client) GetOfflineFavorites(ctx context.Context, ownerID string) ([]string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.favorites.List(ctx, ownerID)
}

// RecordAction appends a user action.
func (c *Client) RecordAction(ctx context.Context, actionType, dealID, ownerID string) (*models.UserAction, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.actions.Record(ctx, actionType, dealID, ownerID)
}

// EnqueueSyncOperation defers a remote write.
func (c *Client) EnqueueSyncOperation(ctx context.Context, opType, endpoint string, payload any) (*models.SyncOperation, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.queue.Enqueue(ctx, opType, endpoint, payload)
}

// ListStalledOperations lists queue rows that exhausted their retries.
func (c *Client) ListStalledOperations(ctx context.Context) ([]models.SyncOperation, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.queue.Stalled(ctx)
}

// Stats counts rows per table.
func (c *Client) Stats(ctx context.Context) (services.StoreStats, error) {
	if err := c.ensureReady(ctx); err != nil {
		return services.StoreStats{}, err
	}
	return c.stats.Collect(ctx)
}

// ReceivePush stores an incoming push notification.
func (c *Client) ReceivePush(ctx context.Context, payload services.PushPayload) (*services.PushNotificationDTO, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.push.Receive(ctx, payload)
}

// HandlePushAction applies a notification action.
func (c *Client) HandlePushAction(ctx context.Context, id, action string) (*services.PushActionResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.push.HandleAction(ctx, id, action)
}

// ListPush returns notifications for ownerID.
func (c *Client) ListPush(ctx context.Context, ownerID string, limit int) ([]services.PushNotificationDTO, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.push.List(ctx, ownerID, limit)
}
