package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ApplyRuntimeDefaults fills the values the daemon cannot start without and returns the keys
// it filled, in a stable order.
func ApplyRuntimeDefaults(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var filled []string
	if strings.TrimSpace(cfg.Device.ID) == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("generate device id: %w", err)
		}
		cfg.Device.ID = id.String()
		filled = append(filled, "device.id")
	}

	// The deals API usually lives on the same origin as the web app.
	origin := strings.TrimSpace(cfg.NetCache.Origin)
	if strings.TrimSpace(cfg.Gateway.BaseURL) == "" && origin != "" {
		cfg.Gateway.BaseURL = origin
		filled = append(filled, "gateway.base_url")
	}
	return filled, nil
}
