package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/enzyme/client/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LogConfig{Level: "warn", Format: "json"}, false))

	logger.Info("dropped")
	logger.Warn("kept", "component", "stream")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered at warn level, got: %s", out)
	}
	if !strings.Contains(out, `"component":"stream"`) {
		t.Fatalf("expected JSON component attribute, got: %s", out)
	}
}

func TestNewHandler_TelemetryBridge(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, config.LogConfig{Level: "info", Format: "text"}, true)
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("bridged handler should keep the configured level")
	}

	slog.New(h).Info("bridged message")
	if !strings.Contains(buf.String(), "bridged message") {
		t.Fatalf("expected message in text output, got: %s", buf.String())
	}
}
