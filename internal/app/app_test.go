package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/enzyme/client/internal/cache"
	"github.com/enzyme/client/internal/config"
	"github.com/enzyme/client/internal/message"
	"github.com/enzyme/client/internal/paging"
)

func newTestAPI(t *testing.T, events <-chan string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces/W1/channels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"c1","workspace_id":"W1","name":"general","type":"public"}],"has_more":false}`))
	})
	mux.HandleFunc("/api/workspaces/W1/invitations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"has_more":false}`))
	})
	mux.HandleFunc("/api/channels/C1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"m1","channel_id":"C1","content":"hello"}],"has_more":true}`))
	})
	mux.HandleFunc("/api/workspaces/W1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for {
			select {
			case f := <-events:
				fmt.Fprint(w, f)
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Stream.ProbeAddr = strings.TrimPrefix(baseURL, "http://")
	cfg.API.BaseURL = baseURL
	cfg.API.WorkspaceID = "W1"
	cfg.API.AccessToken = "tok"
	cfg.API.ChannelIDs = []string{"C1"}
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.Stream.InitTimeout = 2 * time.Second
	return cfg
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_SyncsListsWithStream(t *testing.T) {
	events := make(chan string, 4)
	srv := newTestAPI(t, events)

	a, err := New(testConfig(t, srv.URL), "test")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(ctx) }()

	msgs, ok := a.Messages("C1")
	if !ok {
		t.Fatal("message list for C1 not created")
	}
	eventually(t, "initial pages", func() bool {
		return a.Channels.State().Status == paging.StatusLoaded &&
			a.Invitations.State().Status == paging.StatusLoaded &&
			msgs.State().Status == paging.StatusLoaded
	})

	events <- "channel-created\nid: 01A\ndata: {\"id\":\"c2\",\"workspace_id\":\"W1\",\"name\":\"random\"}\n\n"
	events <- "message-updated\nid: 01B\ndata: {\"id\":\"m1\",\"channel_id\":\"C1\",\"content\":\"edited\"}\n\n"

	eventually(t, "channel create", func() bool { return len(a.Channels.State().Snapshot.Items) == 2 })
	eventually(t, "message update", func() bool {
		items := msgs.State().Snapshot.Items
		return len(items) == 1 && items[0].Content == "edited"
	})
	eventually(t, "cursor", func() bool { return a.StreamState().LastEventID == "01B" })

	lists := a.Lists()
	if len(lists) != 3 {
		t.Fatalf("Lists() = %d entries", len(lists))
	}
	if st := lists["messages:C1"].Status(); st.State != "loaded" || st.Items != 1 || !st.HasNextPage {
		t.Errorf("messages status = %+v", st)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestApp_CachesPagesForOfflineUse(t *testing.T) {
	srv := newTestAPI(t, make(chan string))
	cfg := testConfig(t, srv.URL)

	a, err := New(cfg, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())

	msgs, _ := a.Messages("C1")
	if err := msgs.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	page, err := cache.Get[message.Message](context.Background(), a.Cache, cache.Key("messages", "C1"),
		paging.Request{Limit: cfg.Paging.PageSize})
	if err != nil {
		t.Fatalf("page not cached: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "m1" || !page.HasNextPage {
		t.Fatalf("cached page = %+v", page)
	}
}

func TestNew_RejectsBadPagingMode(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Paging.Mode = "pages"
	if _, err := New(cfg, "test"); err == nil {
		t.Fatal("expected error for unknown paging mode")
	}
}
