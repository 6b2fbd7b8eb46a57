package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a slog.Logger configured from GO_ENV, LOG_LEVEL and LOG_FORMAT.
// Production defaults to the JSON handler, everything else to text; LOG_FORMAT
// (json or text) overrides that. LOG_LEVEL may be debug, info, warn or error (default info).
// Every record carries service=campushub.
func NewLogger() *slog.Logger {
	return newLogger(os.Stdout, getEnv("GO_ENV", "development"), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(w io.Writer, env, levelName, format string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(levelName)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "text"
		if env == "production" {
			format = "json"
		}
	}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "campushub")
}
