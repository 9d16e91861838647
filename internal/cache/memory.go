package cache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/coocood/freecache"
)

const minMemoryCacheBytes = 512 * 1024

// MemoryStore is an in-process Store backed by freecache. Entries are evicted by freecache
// when the segment is full, so it serves as a front tier only.
type MemoryStore struct {
	cache *freecache.Cache
	mu    sync.Mutex
}

// NewMemoryStore allocates a cache of sizeMB megabytes.
func NewMemoryStore(sizeMB int) *MemoryStore {
	size := sizeMB * 1024 * 1024
	if size < minMemoryCacheBytes {
		size = minMemoryCacheBytes
	}
	return &MemoryStore{cache: freecache.NewCache(size)}
}

// IncrementWithTTL increments a decimal counter. The window is kept from the first increment.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := []byte(key)
	current, remaining, err := s.cache.GetWithExpiration(k)
	if errors.Is(err, freecache.ErrNotFound) {
		if err := s.cache.Set(k, []byte("1"), ttlSeconds(window)); err != nil {
			return 0, 0, err
		}
		return 1, window, nil
	}
	if err != nil {
		return 0, 0, err
	}

	count, _ := strconv.ParseInt(string(current), 10, 64)
	count++

	ttl := window
	if remaining > 0 {
		ttl = time.Until(time.Unix(int64(remaining), 0))
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	if err := s.cache.Set(k, []byte(strconv.FormatInt(count, 10)), ttlSeconds(ttl)); err != nil {
		return 0, 0, err
	}
	return count, ttl, nil
}

// Set stores value; freecache resolves expiry in whole seconds.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cache.Set([]byte(key), value, ttlSeconds(ttl))
}

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := s.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Del([]byte(key))
	}
	return nil
}

// PurgeExpired is a no-op: freecache drops expired entries lazily.
func (s *MemoryStore) PurgeExpired(context.Context) (int64, error) {
	return 0, nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear() {
	s.cache.Clear()
}

// EntryCount reports the number of live entries.
func (s *MemoryStore) EntryCount() int64 {
	return s.cache.EntryCount()
}

func ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	seconds := math.Ceil(ttl.Seconds())
	if seconds > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(seconds)
}
