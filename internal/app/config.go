package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration of the dealcache daemon.
type Config struct {
	Device       DeviceConfig       `mapstructure:"device"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	NetCache     NetCacheConfig     `mapstructure:"netcache"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// DeviceConfig identifies this installation towards the remote API.
type DeviceConfig struct {
	ID string `mapstructure:"id"`
}

// ServerConfig configures the local HTTP server.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(s.Host), s.Port)
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes the backends of the API response cache.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// NetCacheConfig configures the network response cache.
type NetCacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Origin       string        `mapstructure:"origin"`
	Version      string        `mapstructure:"version"`
	APIPrefix    string        `mapstructure:"api_prefix"`
	StaticAssets []string      `mapstructure:"static_assets"`
	SeedAPI      []string      `mapstructure:"seed_api"`
	ListingPaths []string      `mapstructure:"listing_paths"`
	HotEndpoints []string      `mapstructure:"hot_endpoints"`
	ImageTTL     time.Duration `mapstructure:"image_ttl"`
	APIMaxAge    time.Duration `mapstructure:"api_max_age"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	OfflinePage  string        `mapstructure:"offline_page"`
	MemoryMB     int           `mapstructure:"memory_mb"`
	FrontTTL     time.Duration `mapstructure:"front_ttl"`
}

// GatewayConfig configures the client of the remote deals API.
type GatewayConfig struct {
	BaseURL       string            `mapstructure:"base_url"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RatePerSecond float64           `mapstructure:"rate_per_second"`
	Burst         int               `mapstructure:"burst"`
	Headers       map[string]string `mapstructure:"headers"`
}

// SyncConfig tunes the synchronisation engine.
type SyncConfig struct {
	ActionBatch int  `mapstructure:"action_batch"`
	QueueBatch  int  `mapstructure:"queue_batch"`
	OnReconnect bool `mapstructure:"on_reconnect"`
}

// ConnectivityConfig configures reachability probing.
type ConnectivityConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	InitialOnline bool          `mapstructure:"initial_online"`
}

// MaintenanceConfig schedules background jobs. Empty schedules disable the job.
type MaintenanceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	StoreCleanup      string `mapstructure:"store_cleanup"`
	APICleanup        string `mapstructure:"api_cleanup"`
	HotRefresh        string `mapstructure:"hot_refresh"`
	Sync              string `mapstructure:"sync"`
	DealCleanup       string `mapstructure:"deal_cleanup"`
	Probe             string `mapstructure:"probe"`
	DealRetentionDays int    `mapstructure:"deal_retention_days"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("DEALCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/dealcache.sqlite")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "dealcache:")

	v.SetDefault("netcache.enabled", true)
	v.SetDefault("netcache.origin", "http://127.0.0.1:3000")
	v.SetDefault("netcache.version", "v1")
	v.SetDefault("netcache.api_prefix", "/api/")
	v.SetDefault("netcache.static_assets", []string{"/", "/offline.html", "/manifest.json"})
	v.SetDefault("netcache.seed_api", []string{"/api/deals/featured", "/api/categories"})
	v.SetDefault("netcache.listing_paths", []string{"/api/deals", "/api/listings"})
	v.SetDefault("netcache.hot_endpoints", []string{"/api/deals/featured", "/api/deals/trending"})
	v.SetDefault("netcache.image_ttl", "24h")
	v.SetDefault("netcache.api_max_age", "168h")
	v.SetDefault("netcache.fetch_timeout", "15s")
	v.SetDefault("netcache.offline_page", "/offline.html")
	v.SetDefault("netcache.memory_mb", 32)
	v.SetDefault("netcache.front_ttl", "10m")

	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.rate_per_second", 10)
	v.SetDefault("gateway.burst", 5)

	v.SetDefault("sync.action_batch", 50)
	v.SetDefault("sync.queue_batch", 10)
	v.SetDefault("sync.on_reconnect", true)

	v.SetDefault("connectivity.probe_url", "http://127.0.0.1:3000/api/health")
	v.SetDefault("connectivity.probe_timeout", "5s")
	v.SetDefault("connectivity.initial_online", false)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.store_cleanup", "@hourly")
	v.SetDefault("maintenance.api_cleanup", "@daily")
	v.SetDefault("maintenance.hot_refresh", "@every 5m")
	v.SetDefault("maintenance.sync", "@every 1m")
	v.SetDefault("maintenance.deal_cleanup", "@daily")
	v.SetDefault("maintenance.probe", "@every 15s")
	v.SetDefault("maintenance.deal_retention_days", 30)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
