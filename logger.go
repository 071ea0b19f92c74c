package scriptloader

import (
	"io"
	"log/slog"
	"strings"
)

// Logger defines the interface for loader logging, using structured
// key-value pairs:
//
//	logger.Debug("Resource status changed", "resource", "NS.Widget", "from", "Loaded", "to", "Ready")
//
// It matches the method set of *slog.Logger, so most structured loggers can
// be adapted with a thin wrapper.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// NewSlogLogger builds a Logger on log/slog. format is "text" or "json";
// level is one of debug, info, warn or error.
func NewSlogLogger(level, format string, w io.Writer) Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
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

type discardLogger struct{}

func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Debug(string, ...any) {}
