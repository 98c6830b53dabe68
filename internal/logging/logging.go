// Package logging provides structured logging setup for visit-management.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/promise4all/visit-management/internal/config"
)

// Setup initializes the default slog logger and returns it.
// Dev mode uses human-readable text at debug level; otherwise the
// configured format and level apply. File output rotates via lumberjack.
func Setup(cfg config.LoggingConfig, devMode bool) *slog.Logger {
	return setup(cfg, devMode, os.Stdout)
}

func setup(cfg config.LoggingConfig, devMode bool, stdout io.Writer) *slog.Logger {
	w := stdout
	if cfg.File.Enabled && cfg.File.Path != "" {
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(cfg.Level),
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(cfg.Level),
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
