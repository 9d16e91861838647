package netcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/cache"
	"github.com/charlesng35/dealcache/internal/database"
	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/monitoring"
)

const (
	frontTier   = "netcache_memory"
	durableTier = "netcache_database"
	frontKeySep = "\x00"
)

// Storage persists named response caches. Bodies are compressed in the database and recently
// used entries are kept in an in-process front tier.
type Storage struct {
	db         *gorm.DB
	front      *cache.Instrumented
	memory     *cache.MemoryStore
	compressor cache.Compressor
	frontTTL   time.Duration
}

// StorageOption customises Storage.
type StorageOption func(*Storage)

// WithFrontTTL sets how long entries stay in the memory tier.
func WithFrontTTL(ttl time.Duration) StorageOption {
	return func(s *Storage) {
		if ttl > 0 {
			s.frontTTL = ttl
		}
	}
}

// WithCompressor replaces the zstd compressor.
func WithCompressor(c cache.Compressor) StorageOption {
	return func(s *Storage) {
		if c != nil {
			s.compressor = c
		}
	}
}

// NewStorage builds Storage over db with a memory tier of memoryMB megabytes.
func NewStorage(db *gorm.DB, memoryMB int, opts ...StorageOption) (*Storage, error) {
	if db == nil {
		return nil, errors.New("netcache: db is required")
	}
	memory := cache.NewMemoryStore(memoryMB)
	s := &Storage{
		db:       db,
		memory:   memory,
		front:    cache.NewInstrumented(frontTier, memory),
		frontTTL: DefaultFrontTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.compressor == nil {
		zc, err := cache.NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		s.compressor = zc
	}
	return s, nil
}

// Batch groups entries destined for one named cache.
type Batch struct {
	Cache   string
	Entries map[string]*Entry
}

// Put stores entry under key in the named cache, replacing any previous copy.
func (s *Storage) Put(ctx context.Context, cacheName, key string, entry *Entry) error {
	return s.PutBatches(ctx, Batch{Cache: cacheName, Entries: map[string]*Entry{key: entry}})
}

// PutBatches writes every batch in one transaction.
func (s *Storage) PutBatches(ctx context.Context, batches ...Batch) error {
	rows := make([]models.CachedResponse, 0)
	for _, batch := range batches {
		for key, entry := range batch.Entries {
			row, err := s.encode(batch.Cache, key, entry)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cache_name"}, {Name: "cache_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"method", "url", "status", "header", "body", "stored_at"}),
			}).Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("netcache: store responses: %w", err)
	}

	for i := range rows {
		s.remember(ctx, &rows[i])
	}
	return nil
}

// Get returns the entry stored under key in the named cache.
func (s *Storage) Get(ctx context.Context, cacheName, key string) (*Entry, bool, error) {
	if raw, ok, err := s.front.Get(ctx, frontKey(cacheName, key)); err == nil && ok {
		var row models.CachedResponse
		if err := json.Unmarshal(raw, &row); err == nil {
			entry, err := s.decode(&row)
			if err == nil {
				return entry, true, nil
			}
		}
	}

	var row models.CachedResponse
	err := s.db.WithContext(ctx).
		Where("cache_name = ? AND cache_key = ?", cacheName, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		monitoring.RecordCacheLookup(durableTier, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("netcache: load %s: %w", key, err)
	}
	monitoring.RecordCacheLookup(durableTier, true)

	entry, err := s.decode(&row)
	if err != nil {
		return nil, false, err
	}
	s.remember(ctx, &row)
	return entry, true, nil
}

// Match looks key up in every named cache and returns the most recently stored copy.
func (s *Storage) Match(ctx context.Context, key string) (*Entry, bool, error) {
	var row models.CachedResponse
	err := s.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Order("stored_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("netcache: match %s: %w", key, err)
	}
	entry, err := s.decode(&row)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Names lists the named caches that currently hold entries.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&models.CachedResponse{}).
		Distinct().
		Order("cache_name").
		Pluck("cache_name", &names).Error; err != nil {
		return nil, fmt.Errorf("netcache: list caches: %w", err)
	}
	return names, nil
}

// Drop deletes a named cache.
func (s *Storage) Drop(ctx context.Context, cacheName string) (int64, error) {
	result := s.db.WithContext(ctx).Where("cache_name = ?", cacheName).Delete(&models.CachedResponse{})
	if result.Error != nil {
		return 0, fmt.Errorf("netcache: drop %s: %w", cacheName, result.Error)
	}
	s.memory.Clear()
	return result.RowsAffected, nil
}

// DeleteOlderThan removes entries of a named cache whose Date is before cutoff.
func (s *Storage) DeleteOlderThan(ctx context.Context, cacheName string, cutoff time.Time) (int64, error) {
	var rows []models.CachedResponse
	if err := s.db.WithContext(ctx).
		Select("id", "cache_key", "header", "stored_at").
		Where("cache_name = ?", cacheName).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("netcache: scan %s: %w", cacheName, err)
	}

	var (
		ids  []uint
		keys []string
	)
	for _, row := range rows {
		entry := Entry{StoredAt: row.StoredAt, Header: decodeHeader(row.Header)}
		if entry.Date().Before(cutoff) {
			ids = append(ids, row.ID)
			keys = append(keys, frontKey(cacheName, row.CacheKey))
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.CachedResponse{})
	if result.Error != nil {
		return 0, fmt.Errorf("netcache: prune %s: %w", cacheName, result.Error)
	}
	_ = s.front.Delete(ctx, keys...)
	return result.RowsAffected, nil
}

// RecordVersion stores the active cache version and returns the previous one.
func (s *Storage) RecordVersion(ctx context.Context, version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return "", errors.New("netcache: empty cache version")
	}
	return database.NewSettings(s.db).Swap(ctx, database.NetCacheVersionKey, version)
}

func (s *Storage) encode(cacheName, key string, entry *Entry) (models.CachedResponse, error) {
	if entry == nil {
		return models.CachedResponse{}, errors.New("netcache: nil entry")
	}
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return models.CachedResponse{}, fmt.Errorf("netcache: encode header: %w", err)
	}
	body, err := s.compressor.Compress(entry.Body)
	if err != nil {
		return models.CachedResponse{}, fmt.Errorf("netcache: compress body: %w", err)
	}
	return models.CachedResponse{
		CacheName: cacheName,
		CacheKey:  key,
		Method:    entry.Method,
		URL:       entry.URL,
		Status:    entry.Status,
		Header:    datatypes.JSON(header),
		Body:      body,
		StoredAt:  entry.StoredAt.UTC(),
	}, nil
}

func (s *Storage) decode(row *models.CachedResponse) (*Entry, error) {
	body, err := s.compressor.Decompress(row.Body)
	if err != nil {
		return nil, fmt.Errorf("netcache: decompress %s: %w", row.CacheKey, err)
	}
	return &Entry{
		Method:   row.Method,
		URL:      row.URL,
		Status:   row.Status,
		Header:   decodeHeader(row.Header),
		Body:     body,
		StoredAt: row.StoredAt,
	}, nil
}

func (s *Storage) remember(ctx context.Context, row *models.CachedResponse) {
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	_ = s.front.Set(ctx, frontKey(row.CacheName, row.CacheKey), raw, s.frontTTL)
}

func decodeHeader(data datatypes.JSON) http.Header {
	header := http.Header{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &header)
	}
	return header
}

func frontKey(cacheName, key string) string {
	return cacheName + frontKeySep + key
}
