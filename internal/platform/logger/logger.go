package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/scry-deckgen/internal/config"
)

// ParseLevel maps a configured level name to a slog level (case-insensitive).
// It reports false for unknown names, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup creates the application's JSON logger writing to stdout and sets it
// as the slog default.
func Setup(cfg config.LogConfig) (*slog.Logger, error) {
	return SetupWriter(os.Stdout, cfg)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(out io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, ok := ParseLevel(cfg.Level)

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	slog.SetDefault(logger)
	return logger, nil
}
