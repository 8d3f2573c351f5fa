package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/stream"
	"github.com/enzyme/client/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ListStatus summarizes one reconciled list.
type ListStatus struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Items       int    `json:"items"`
	HasNextPage bool   `json:"has_next_page"`
	Error       string `json:"error,omitempty"`
}

type Status struct {
	Version string       `json:"version"`
	Stream  stream.State `json:"stream"`
	Lists   []ListStatus `json:"lists"`
}

// List is a reconciled list the status endpoint can report on and drive.
type List interface {
	Status() ListStatus
	Refresh(ctx context.Context) error
	LoadNext(ctx context.Context) error
}

// Source supplies what the status endpoint reports.
type Source interface {
	StreamState() stream.State
	Lists() map[string]List
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRouter builds the status API. CORS is enabled only when allowedOrigins
// is non-empty.
func NewRouter(src Source, version string, allowedOrigins []string, telemetryEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	if telemetryEnabled {
		r.Use(telemetry.Middleware())
	}

	if len(allowedOrigins) > 0 {
		allowedHeaders := []string{"Content-Type"}
		if telemetryEnabled {
			allowedHeaders = append(allowedHeaders, "traceparent", "tracestate")
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: allowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         86400,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, snapshot(src, version))
		})
		r.Get("/status/stream", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, src.StreamState())
		})
		r.Get("/lists/{name}", func(w http.ResponseWriter, r *http.Request) {
			list, ok := lookup(w, r, src)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, list.Status())
		})
		r.Post("/lists/{name}/refresh", func(w http.ResponseWriter, r *http.Request) {
			list, ok := lookup(w, r, src)
			if !ok {
				return
			}
			respondLoad(w, r, list, list.Refresh(r.Context()))
		})
		r.Post("/lists/{name}/load-more", func(w http.ResponseWriter, r *http.Request) {
			list, ok := lookup(w, r, src)
			if !ok {
				return
			}
			respondLoad(w, r, list, list.LoadNext(r.Context()))
		})
	})

	return r
}

func snapshot(src Source, version string) Status {
	lists := src.Lists()
	st := Status{Version: version, Stream: src.StreamState(), Lists: make([]ListStatus, 0, len(lists))}
	for _, l := range lists {
		st.Lists = append(st.Lists, l.Status())
	}
	sort.Slice(st.Lists, func(i, j int) bool { return st.Lists[i].Name < st.Lists[j].Name })
	return st
}

func lookup(w http.ResponseWriter, r *http.Request, src Source) (List, bool) {
	name := chi.URLParam(r, "name")
	list, ok := src.Lists()[name]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no list named "+name)
		return nil, false
	}
	return list, true
}

func respondLoad(w http.ResponseWriter, r *http.Request, list List, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, list.Status())
		return
	}
	slog.Warn("list load failed", "component", "server", "path", r.URL.Path, "error", err)
	status := http.StatusBadGateway
	if problem.Is(err, problem.Connectivity) {
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) {
		status = http.StatusRequestTimeout
	}
	writeError(w, status, strings.ToUpper(problem.KindOf(err).String()), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
