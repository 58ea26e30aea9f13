// Package logging holds the process-wide structured logger. Level and
// format come from flags or from QUARRY_LOG_LEVEL / QUARRY_LOG_FORMAT when
// the caller passes nothing.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const (
	// LevelEnvVar overrides the log level when Init gets an empty level.
	LevelEnvVar = "QUARRY_LOG_LEVEL"

	// FormatEnvVar selects the handler: "json" or "text" (default).
	FormatEnvVar = "QUARRY_LOG_FORMAT"
)

var logger *slog.Logger

// Init initializes the global structured logger. An empty level falls back
// to QUARRY_LOG_LEVEL, then to info.
func Init(level string) {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv(FormatEnvVar), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	if logger == nil {
		Init("")
	}
	return logger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}
