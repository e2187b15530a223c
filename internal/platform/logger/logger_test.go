// Package logger_test contains tests for the logger package
package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/phrazzld/scry-deckgen/internal/config"
	"github.com/phrazzld/scry-deckgen/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreDefault puts the previous default logger back after a test
func restoreDefault(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func parseLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		want  slog.Level
		known bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := logger.ParseLevel(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestSetupWriter_FiltersBelowLevel(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	log, err := logger.SetupWriter(&buf, config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("hidden")
	log.Warn("shown", "word", "casa")

	entries := parseLines(t, buf.String())
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "casa", entries[0]["word"])
	assert.Same(t, log, slog.Default())
}

func TestSetupWriter_InvalidLevelWarns(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	log, err := logger.SetupWriter(&buf, config.LogConfig{Level: "loud"})
	require.NoError(t, err)

	log.Debug("hidden")

	entries := parseLines(t, buf.String())
	require.Len(t, entries, 1)
	assert.Equal(t, "invalid log level configured, using default level", entries[0]["msg"])
	assert.Equal(t, "loud", entries[0]["configured_level"])
}

func TestFromContext(t *testing.T) {
	restoreDefault(t)

	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))

	var buf bytes.Buffer
	custom := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := logger.WithLogger(context.Background(), custom)
	assert.Same(t, custom, logger.FromContext(ctx))
}
