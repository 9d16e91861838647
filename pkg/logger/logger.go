// Package logger holds the process-wide zap logger. It discards everything until Configure
// or Replace installs a real one.
package logger

import (
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Options tune the logger built by Configure.
type Options struct {
	// Level is a zap level name; anything unparsable means info.
	Level string
	// Format is "json" (default) or "console".
	Format string
	// Fields are attached to every entry, e.g. the device id.
	Fields map[string]string
}

// Configure builds a logger from opts and installs it.
func Configure(opts Options) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	keys := make([]string, 0, len(opts.Fields))
	for k := range opts.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, len(keys))
	for i, k := range keys {
		fields[i] = zap.String(k, opts.Fields[k])
	}

	log, err := cfg.Build(zap.Fields(fields...))
	if err != nil {
		return err
	}
	Replace(log)
	return nil
}

// Replace installs log; nil restores the no-op logger.
func Replace(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	current.Store(log)
}

func Logger() *zap.Logger {
	return current.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
