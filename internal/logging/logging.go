package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/enzyme/client/internal/config"
	"github.com/enzyme/client/internal/telemetry"
)

// Setup installs the process-wide slog logger writing to stderr.
// The standard "log" package is bridged through slog.SetDefault. When
// telemetryEnabled is true, records carry trace_id and span_id of the
// active span.
func Setup(cfg config.LogConfig, telemetryEnabled bool) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, cfg, telemetryEnabled)))
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(w io.Writer, cfg config.LogConfig, telemetryEnabled bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if telemetryEnabled {
		handler = telemetry.NewSlogBridge(handler)
	}
	return handler
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
