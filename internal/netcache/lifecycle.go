package netcache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// InstallReport counts the precached responses.
type InstallReport struct {
	Static int `json:"static"`
	API    int `json:"api"`
}

// ActivateReport describes a version switch.
type ActivateReport struct {
	Version  string   `json:"version"`
	Previous string   `json:"previous,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// Install fetches the static assets and the seed API responses and stores them. Either every
// response is stored or none is.
func (p *Proxy) Install(ctx context.Context) (InstallReport, error) {
	static, err := p.prefetch(ctx, p.opts.StaticAssets)
	if err != nil {
		return InstallReport{}, fmt.Errorf("netcache: install static assets: %w", err)
	}
	seed, err := p.prefetch(ctx, p.opts.SeedAPI)
	if err != nil {
		return InstallReport{}, fmt.Errorf("netcache: install seed api: %w", err)
	}

	if err := p.storage.PutBatches(ctx,
		Batch{Cache: p.names.Static, Entries: static},
		Batch{Cache: p.names.API, Entries: seed},
	); err != nil {
		return InstallReport{}, err
	}

	report := InstallReport{Static: len(static), API: len(seed)}
	p.log.Info("network caches installed",
		zap.String("version", p.opts.Version),
		zap.Int("static", report.Static),
		zap.Int("api", report.API),
	)
	return report, nil
}

// Activate removes caches belonging to other versions and records the active version.
func (p *Proxy) Activate(ctx context.Context) (ActivateReport, error) {
	report := ActivateReport{Version: p.opts.Version}

	names, err := p.storage.Names(ctx)
	if err != nil {
		return report, err
	}
	current := make(map[string]struct{}, 3)
	for _, name := range p.names.All() {
		current[name] = struct{}{}
	}
	for _, name := range names {
		if _, keep := current[name]; keep {
			continue
		}
		if _, err := p.storage.Drop(ctx, name); err != nil {
			return report, err
		}
		report.Removed = append(report.Removed, name)
	}

	previous, err := p.storage.RecordVersion(ctx, p.opts.Version)
	if err != nil {
		return report, fmt.Errorf("netcache: record version: %w", err)
	}
	report.Previous = previous

	if len(report.Removed) > 0 || previous != p.opts.Version {
		p.log.Info("network caches activated",
			zap.String("version", report.Version),
			zap.String("previous", previous),
			zap.Strings("removed", report.Removed),
		)
	}
	return report, nil
}

// RefreshHot refetches the hot API endpoints into the API cache and reports how many were
// refreshed. Failed endpoints keep their previous copy.
func (p *Proxy) RefreshHot(ctx context.Context) (int, error) {
	var (
		refreshed int
		errs      error
	)
	for _, endpoint := range p.opts.HotEndpoints {
		req, err := getRequest(ctx, endpoint)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		entry, err := p.fetch(ctx, req)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh %s: %w", endpoint, err))
			continue
		}
		if !isSuccess(entry.Status) {
			errs = multierr.Append(errs, fmt.Errorf("refresh %s: status %d", endpoint, entry.Status))
			continue
		}
		if err := p.storage.Put(ctx, p.names.API, req.key(), entry); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errs
}

// CleanupAPI deletes API cache entries dated more than maxAge ago. A non-positive maxAge uses
// the configured APIMaxAge.
func (p *Proxy) CleanupAPI(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = p.opts.APIMaxAge
	}
	cutoff := p.opts.Clock().UTC().Add(-maxAge)
	return p.storage.DeleteOlderThan(ctx, p.names.API, cutoff)
}

func (p *Proxy) prefetch(ctx context.Context, paths []string) (map[string]*Entry, error) {
	entries := make(map[string]*Entry, len(paths))
	for _, path := range paths {
		req, err := getRequest(ctx, path)
		if err != nil {
			return nil, err
		}
		entry, err := p.fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !isSuccess(entry.Status) {
			return nil, fmt.Errorf("%s: status %d", path, entry.Status)
		}
		entries[req.key()] = entry
	}
	return entries, nil
}

func getRequest(ctx context.Context, path string) (*outgoing, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return nil, fmt.Errorf("netcache: invalid path %q", path)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("netcache: invalid path %q: %w", path, err)
	}
	return newOutgoing(r)
}
