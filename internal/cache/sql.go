package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/dealcache/internal/models"
)

var errNilSQLStore = errors.New("cache: sql store is nil")

// keyColumn is quoted by gorm; "key" is reserved in MySQL.
var keyColumn = clause.Column{Name: "key"}

// SQLStore keeps entries in the kv_entries table of the local database. Expiry is evaluated
// on read; PurgeExpired reclaims the rows.
type SQLStore struct {
	db  *gorm.DB
	now Clock
}

// NewSQLStore returns nil when db is nil.
func NewSQLStore(db *gorm.DB, clock Clock) *SQLStore {
	if db == nil {
		return nil
	}
	clock = nowOrDefault(clock)
	return &SQLStore{db: db, now: func() time.Time { return clock().UTC() }}
}

// IncrementWithTTL bumps a fixed-window counter. The window starts with the first hit after
// the previous one lapsed.
func (s *SQLStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errNilSQLStore
	}
	if window <= 0 {
		window = time.Minute
	}
	now := s.now()

	var (
		count  int64
		expiry time.Time
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, found, err := s.lockedEntry(tx, key)
		if err != nil {
			return err
		}

		count, expiry = 1, now.Add(window)
		if found && entry.ExpiresAt.After(now) {
			previous, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count, expiry = previous+1, entry.ExpiresAt
		}

		return tx.Clauses(upsert("value", "expires_at", "updated_at")).Create(&models.KVEntry{
			Key:       key,
			Value:     strconv.AppendInt(nil, count, 10),
			ExpiresAt: expiry,
			UpdatedAt: now,
		}).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return count, expiry.Sub(now), nil
}

func (s *SQLStore) lockedEntry(tx *gorm.DB, key string) (models.KVEntry, bool, error) {
	var entry models.KVEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(clause.Eq{Column: keyColumn, Value: key}).
		Take(&entry).Error
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return entry, false, nil
	default:
		return entry, false, err
	}
}

// Set writes value. A non-positive ttl stores it without expiry.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errNilSQLStore
	}
	now := s.now()
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	return s.db.WithContext(ctx).Clauses(upsert("value", "expires_at", "updated_at")).Create(&entry).Error
}

// Get reports a miss for absent and expired keys alike.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errNilSQLStore
	}

	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: keyColumn, Value: key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expired(entry.ExpiresAt, s.now()) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errNilSQLStore
	}
	if len(keys) == 0 {
		return nil
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	return s.db.WithContext(ctx).
		Where(clause.IN{Column: keyColumn, Values: values}).
		Delete(&models.KVEntry{}).Error
}

func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errNilSQLStore
	}
	res := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at <= ?", time.Time{}, s.now()).
		Delete(&models.KVEntry{})
	return res.RowsAffected, res.Error
}

func upsert(columns ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{keyColumn},
		DoUpdates: clause.AssignmentColumns(columns),
	}
}

func expired(at, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}
