package app

import (
	"strings"

	"github.com/charlesng35/dealcache/internal/cache"
	"github.com/charlesng35/dealcache/internal/database"
	"github.com/charlesng35/dealcache/internal/gateway"
	"github.com/charlesng35/dealcache/internal/netcache"
)

// DeviceHeader carries the device id on every gateway request.
const DeviceHeader = "X-Device-ID"

// ConnectionConfig converts the database section into the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var auth DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = c.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = c.MySQL
	default:
		// unsupported drivers fail in database.Open
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

// RedisClientConfig converts the redis section into cache.RedisConfig.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	r := c.Redis
	return cache.RedisConfig{
		URL:      strings.TrimSpace(r.URL),
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
		Prefix:   strings.TrimSpace(r.Prefix),
	}
}

// ProxyOptions converts the netcache section into proxy options.
func (c NetCacheConfig) ProxyOptions() netcache.Options {
	return netcache.Options{
		Origin:       strings.TrimSpace(c.Origin),
		Version:      strings.TrimSpace(c.Version),
		APIPrefix:    strings.TrimSpace(c.APIPrefix),
		StaticAssets: trimAll(c.StaticAssets),
		SeedAPI:      trimAll(c.SeedAPI),
		ListingPaths: trimAll(c.ListingPaths),
		HotEndpoints: trimAll(c.HotEndpoints),
		ImageTTL:     c.ImageTTL,
		APIMaxAge:    c.APIMaxAge,
		FetchTimeout: c.FetchTimeout,
		OfflinePage:  strings.TrimSpace(c.OfflinePage),
	}
}

// ClientOptions converts the gateway section, attaching the device id header when set.
func (c GatewayConfig) ClientOptions(deviceID string) gateway.Options {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	if id := strings.TrimSpace(deviceID); id != "" {
		headers[DeviceHeader] = id
	}
	return gateway.Options{
		BaseURL:       strings.TrimSpace(c.BaseURL),
		Timeout:       c.Timeout,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		Headers:       headers,
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
