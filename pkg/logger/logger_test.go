package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerDiscards(t *testing.T) {
	require.False(t, Logger().Core().Enabled(zap.ErrorLevel))
}

func TestConfigureLevels(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.NoError(t, Configure(Options{Level: "debug"}))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Configure(Options{Level: "chatty", Format: "console"}))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestReplaceNilRestoresNop(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	Replace(zap.New(core))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))

	Replace(nil)
	require.False(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestWithModuleTagsEntries(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	WithModule("syncer").Info("pass complete", zap.Int("pushed", 3))

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "pass complete", entries[0].Message)
	require.Equal(t, map[string]any{"module": "syncer", "pushed": int64(3)}, entries[0].ContextMap())
}
