package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	pionlogging "github.com/pion/logging"
)

// current is the level chosen by the last Init, shared with pion's loggers.
var current = slog.LevelError

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values yield
// fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Init installs a text logger on stderr as the slog default. An empty level
// falls back to LOG_LEVEL, then to error (production only shows errors).
func Init(level string) *slog.Logger {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	current = ParseLevel(level, slog.LevelError)

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: current,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PionFactory returns a logger factory for pion at the level picked by Init,
// writing to w.
func PionFactory(w io.Writer) *pionlogging.DefaultLoggerFactory {
	f := pionlogging.NewDefaultLoggerFactory()
	f.Writer = w
	switch {
	case current <= slog.LevelDebug:
		f.DefaultLogLevel = pionlogging.LogLevelDebug
	case current <= slog.LevelInfo:
		f.DefaultLogLevel = pionlogging.LogLevelInfo
	case current <= slog.LevelWarn:
		f.DefaultLogLevel = pionlogging.LogLevelWarn
	default:
		f.DefaultLogLevel = pionlogging.LogLevelError
	}
	return f
}
