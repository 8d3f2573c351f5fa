package server

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLogger_UsesRoutePattern(t *testing.T) {
	buf := captureLogs(t)
	src, _ := newTestSource()
	router := NewRouter(src, "test", nil, false)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/lists/channels", nil))

	out := buf.String()
	for _, want := range []string{"route=/api/lists/{name}", "list=channels", "status=200", "component=server"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestRequestLogger_SkipsHealth(t *testing.T) {
	buf := captureLogs(t)
	src, _ := newTestSource()
	router := NewRouter(src, "test", nil, false)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if strings.Contains(buf.String(), "status request") {
		t.Errorf("health check was logged: %s", buf.String())
	}
}
