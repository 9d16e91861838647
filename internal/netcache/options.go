// Package netcache is the HTTP response cache that sits between the client and the remote
// deals origin. Each request class gets its own strategy and named cache.
package netcache

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for Options.
const (
	DefaultAPIPrefix    = "/api/"
	DefaultImageTTL     = 24 * time.Hour
	DefaultAPIMaxAge    = 7 * 24 * time.Hour
	DefaultFetchTimeout = 15 * time.Second
	DefaultOfflinePage  = "/offline.html"
	DefaultFrontTTL     = 10 * time.Minute
)

// Options configures a Proxy.
type Options struct {
	// Origin is the base URL of the remote deals site, e.g. https://deals.example.com.
	Origin string
	// Version tags the named caches. Activate drops caches of any other version.
	Version string

	APIPrefix string
	// StaticAssets and SeedAPI are fetched by Install.
	StaticAssets []string
	SeedAPI      []string
	// ListingPaths get an empty offline listing instead of a 503 when nothing is cached.
	ListingPaths []string
	// HotEndpoints are refreshed by RefreshHot.
	HotEndpoints []string

	ImageTTL     time.Duration
	APIMaxAge    time.Duration
	FetchTimeout time.Duration
	OfflinePage  string

	Transport http.RoundTripper
	Clock     func() time.Time
}

func (o Options) withDefaults() (Options, *url.URL, error) {
	raw := strings.TrimSpace(o.Origin)
	if raw == "" {
		return o, nil, errors.New("netcache: origin is required")
	}
	origin, err := url.Parse(raw)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return o, nil, fmt.Errorf("netcache: invalid origin %q", raw)
	}
	origin.Path = strings.TrimSuffix(origin.Path, "/")

	o.Version = strings.TrimSpace(o.Version)
	if o.Version == "" {
		o.Version = "v1"
	}
	if o.APIPrefix == "" {
		o.APIPrefix = DefaultAPIPrefix
	}
	if o.ImageTTL <= 0 {
		o.ImageTTL = DefaultImageTTL
	}
	if o.APIMaxAge <= 0 {
		o.APIMaxAge = DefaultAPIMaxAge
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.OfflinePage == "" {
		o.OfflinePage = DefaultOfflinePage
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o, origin, nil
}

// CacheNames are the versioned cache names for one deployment.
type CacheNames struct {
	Static string
	API    string
	Images string
}

// NamesFor returns the cache names for version.
func NamesFor(version string) CacheNames {
	return CacheNames{
		Static: "dealcache-static-" + version,
		API:    "dealcache-api-" + version,
		Images: "dealcache-images-" + version,
	}
}

// All lists the names.
func (n CacheNames) All() []string {
	return []string{n.Static, n.API, n.Images}
}
