package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// CleanupResult reports what a store cleanup removed.
type CleanupResult struct {
	ExpiredAPIEntries int64 `json:"expired_api_entries"`
	PrunedListings    int64 `json:"pruned_listings"`
}

// StoreCleaner runs the periodic sweeps of the local store.
type StoreCleaner struct {
	apiCache *APICacheService
	listings *ListingCacheService
	keep     int
}

// NewStoreCleaner constructs a StoreCleaner. keep defaults to DefaultListingRetention.
func NewStoreCleaner(apiCache *APICacheService, listings *ListingCacheService, keep int) (*StoreCleaner, error) {
	if apiCache == nil || listings == nil {
		return nil, errors.New("store cleaner: api cache and listing services are required")
	}
	if keep <= 0 {
		keep = DefaultListingRetention
	}
	return &StoreCleaner{apiCache: apiCache, listings: listings, keep: keep}, nil
}

// Cleanup purges expired API entries and prunes listings to the retention limit. The sweeps run
// independently and their errors are combined.
func (c *StoreCleaner) Cleanup(ctx context.Context) (CleanupResult, error) {
	ctx = ensureContext(ctx)
	var (
		result CleanupResult
		errs   error
	)

	expired, err := c.apiCache.PurgeExpired(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge api cache: %w", err))
	}
	result.ExpiredAPIEntries = expired

	pruned, err := c.listings.Prune(ctx, c.keep)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune listings: %w", err))
	}
	result.PrunedListings = pruned

	return result, errs
}
