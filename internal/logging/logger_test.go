package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, s Settings) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), s)
	t.Cleanup(Reset)
	return logs
}

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	Reset()
	l := Get(CategoryListing)
	require.NotNil(t, l)
	// Must not panic.
	l.Info("nothing to see %d", 1)
	assert.Equal(t, CategoryListing, l.Category())
}

func TestCategoryFieldIsAttached(t *testing.T) {
	logs := observe(t, Settings{})

	Profiler("read %s", "dump.out")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "read dump.out", entries[0].Message)
	assert.Equal(t, "profiler", entries[0].ContextMap()["category"])
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, Settings{Categories: map[string]bool{"listing": false}})

	Listing("hidden")
	ListingDebug("hidden too")
	Correlate("shown")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
	assert.False(t, IsCategoryEnabled(CategoryListing))
	assert.True(t, IsCategoryEnabled(CategoryCorrelate))
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, Settings{})

	Get(CategoryReport).With("run", "abc").Warn("wrote %d files", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "abc", entries[0].ContextMap()["run"])
	assert.Equal(t, "report", entries[0].ContextMap()["category"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
		err  bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInitializeWritesFile(t *testing.T) {
	t.Cleanup(Reset)
	path := filepath.Join(t.TempDir(), "logs", "profcov.log")

	require.NoError(t, Initialize(Settings{Level: "debug", Format: "json", File: path}))
	Boot("booted with %s", "test")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "booted with test"), string(data))
	assert.True(t, strings.Contains(string(data), `"category":"boot"`), string(data))
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	t.Cleanup(Reset)
	assert.Error(t, Initialize(Settings{Level: "chatty"}))
}
