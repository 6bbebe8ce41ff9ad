// Package logger builds the process-wide structured logger. Output is JSON
// for machine collection except in development, where a text handler is
// easier to read next to the pipeline's progress output.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fraud-scoring-pipeline/internal/config"
)

// NewLogger creates a slog.Logger configured from the application config.
// Every record carries the application name so logs from the four binaries
// can be told apart in a shared stream.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations only when debugging; they are noise in production
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Application.Env == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("app", cfg.Application.Name)

	logger.Info("logger initialized", "level", level)

	return logger
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
