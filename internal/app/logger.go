package app

import (
	"strings"

	"github.com/charlesng35/dealcache/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server section, defaulting to info.
// The device id, when known, is attached to every entry.
func ConfigureLogging(server ServerConfig, deviceID string) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = "info"
	}
	opts := logger.Options{Level: level, Format: server.LogFormat}
	if id := strings.TrimSpace(deviceID); id != "" {
		opts.Fields = map[string]string{"device_id": id}
	}
	return logger.Configure(opts)
}
