// Package logger provides structured logging setup for crank binaries.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup creates a JSON slog logger at the given level ("debug", "info",
// "warn", "error"; anything else falls back to info) and installs it as the
// process default.
func Setup(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
