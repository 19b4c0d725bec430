// Package logging configures the service's structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the global structured logger with environment-aware
// defaults and returns it.
func Setup() *slog.Logger {
	logger := slog.New(determineHandler())
	slog.SetDefault(logger)
	return logger
}

func determineHandler() slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     getLogLevel(),
		AddSource: os.Getenv("LOG_SOURCE") == "true",
	}

	switch getLogFormat() {
	case "text":
		return slog.NewTextHandler(os.Stdout, opts)
	default:
		return slog.NewJSONHandler(os.Stdout, opts)
	}
}

func getLogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func getLogFormat() string {
	if format := strings.ToLower(os.Getenv("LOG_FORMAT")); format != "" {
		return format
	}
	return "json"
}
