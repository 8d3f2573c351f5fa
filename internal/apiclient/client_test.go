package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/enzyme/client/internal/paging"
	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, creds session.Source) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", srv.Client(), creds, "enzyme-sync/test")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_RejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com", nil, nil, ""); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestEventsURL(t *testing.T) {
	c, err := New("https://chat.example.com/base/", nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.EventsURL("ws 1"), "https://chat.example.com/base/api/workspaces/ws%201/events"; got != want {
		t.Fatalf("EventsURL() = %q, want %q", got, want)
	}
}

func TestListMessages(t *testing.T) {
	creds := session.NewStore(session.Credentials{AccessToken: "tok"})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/channels/c1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("cursor"); got != "m2" {
			t.Errorf("cursor = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" || r.Header.Get("User-Agent") != "enzyme-sync/test" {
			t.Errorf("missing request headers: %v", r.Header)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"m3","channel_id":"c1","content":"hi"}],"has_more":true}`))
	}, creds)

	page, err := c.ListMessages(context.Background(), "c1", paging.Request{Cursor: "m2", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "m3" || page.Items[0].Content != "hi" || !page.HasNextPage {
		t.Fatalf("page = %+v", page)
	}
}

func TestListChannels_OffsetAndEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/workspaces/w1/channels" || r.URL.Query().Get("offset") != "20" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("sent Authorization without credentials")
		}
		_, _ = w.Write([]byte(`{"has_more":false}`))
	}, nil)

	page, err := c.ListChannels(context.Background(), "w1", paging.Request{Offset: 20})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items == nil || len(page.Items) != 0 || page.HasNextPage {
		t.Fatalf("page = %+v", page)
	}
}

func TestListInvitations_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		want   problem.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"UNAUTHORIZED","message":"expired"}}`, nil, problem.Auth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`, map[string]string{"Retry-After": "3"}, problem.RateLimited},
		{"server error", http.StatusBadGateway, ``, nil, problem.Transport},
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"nope"}}`, nil, problem.Unexpected},
		{"bad json", http.StatusOK, `<html>oops</html>`, nil, problem.Protocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := c.ListInvitations(context.Background(), "w1", paging.Request{})
			if got := problem.KindOf(err); got != tt.want {
				t.Fatalf("kind = %s, want %s (err %v)", got, tt.want, err)
			}
			if tt.want == problem.RateLimited {
				var p *problem.Problem
				if !errors.As(err, &p) || p.RetryAfter != 3*time.Second {
					t.Errorf("RetryAfter not parsed: %v", err)
				}
			}
		})
	}
}

func TestListChannels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, nil, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListChannels(context.Background(), "w1", paging.Request{})
	if k := problem.KindOf(err); k != problem.Transport && k != problem.Connectivity {
		t.Fatalf("kind = %s, want transport-class (err %v)", k, err)
	}
}

func TestRefreshSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/refresh" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("refresh must not send the stale access token")
		}
		var body refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != "r1" {
			t.Errorf("body = %+v, %v", body, err)
		}
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_in":3600}`))
	}, session.NewStore(session.Credentials{AccessToken: "stale"}))

	creds, err := c.RefreshSession(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "a2" || creds.RefreshToken != "r2" {
		t.Fatalf("creds = %+v", creds)
	}
	if d := time.Until(creds.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("ExpiresAt in %v", d)
	}
}

func TestRefreshSession_MissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, nil)
	if _, err := c.RefreshSession(context.Background(), "r1"); !problem.Is(err, problem.Protocol) {
		t.Fatalf("err = %v, want protocol problem", err)
	}
}
