// Package app wires the sync core together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/enzyme/client/internal/apiclient"
	"github.com/enzyme/client/internal/binder"
	"github.com/enzyme/client/internal/cache"
	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/config"
	"github.com/enzyme/client/internal/connectivity"
	"github.com/enzyme/client/internal/database"
	"github.com/enzyme/client/internal/invitation"
	"github.com/enzyme/client/internal/message"
	"github.com/enzyme/client/internal/paging"
	"github.com/enzyme/client/internal/ratelimit"
	"github.com/enzyme/client/internal/request"
	"github.com/enzyme/client/internal/server"
	"github.com/enzyme/client/internal/session"
	"github.com/enzyme/client/internal/stream"
	"github.com/enzyme/client/internal/telemetry"
)

type App struct {
	Config    *config.Config
	Version   string
	Telemetry *telemetry.Telemetry
	Session   *session.Store
	API       *apiclient.Client
	Monitor   connectivity.Monitor
	Stream    *stream.Manager
	Executor  *request.Executor
	DB        *database.DB
	Cache     *cache.Store
	Pruner    *cache.Pruner
	Binder    *binder.Binder
	Server    *server.Server

	Channels    *paging.Controller[channel.Channel]
	Invitations *paging.Controller[invitation.Invitation]

	mu       sync.Mutex
	messages map[string]*paging.Controller[message.Message]
	lists    map[string]server.List
}

func New(cfg *config.Config, version string) (*App, error) {
	tel := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		var err error
		tel, err = telemetry.Init(cfg.Telemetry, version, cfg.API.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
	}

	mode, err := paging.ParseMode(cfg.Paging.Mode)
	if err != nil {
		return nil, err
	}

	store := session.NewStore(session.Credentials{
		AccessToken:  cfg.API.AccessToken,
		RefreshToken: cfg.API.RefreshToken,
	})

	base, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api.base_url: %w", err)
	}
	limiter := ratelimit.NewLimiter(cfg.Request.RequestsPerSecond, cfg.Request.Burst, ratelimit.Under(base.Path,
		ratelimit.Rule{Method: http.MethodPost, Path: apiclient.RefreshPath, Rate: 0.2, Burst: 1},
	))
	apiHTTP := &http.Client{
		Timeout:   cfg.API.Timeout,
		Transport: ratelimit.Transport(limiter, telemetry.NewTransport(http.DefaultTransport)),
	}
	api, err := apiclient.New(cfg.API.BaseURL, apiHTTP, store, cfg.API.UserAgent)
	if err != nil {
		return nil, err
	}
	store.SetRefreshFunc(api.RefreshSession)

	monitor, err := connectivity.NewProbe(cfg.Stream.ProbeAddr, cfg.Stream.ProbeInterval, cfg.Stream.ProbeTimeout)
	if err != nil {
		return nil, err
	}

	manager := stream.NewManager(stream.Options{
		URL:            api.EventsURL(cfg.API.WorkspaceID),
		Client:         newStreamClient(cfg.Stream.ConnectTimeout),
		Monitor:        monitor,
		Refresher:      store,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		Buffer:         cfg.Stream.SubscriberBuffer,
	})

	exec := request.NewExecutor(monitor, store, request.Config{
		RateLimitDelay:      cfg.Request.RateLimitDelay,
		RateLimitMaxDelay:   cfg.Request.RateLimitMaxDelay,
		RateLimitMaxRetries: cfg.Request.RateLimitMaxRetries,
	})

	a := &App{
		Config:    cfg,
		Version:   version,
		Telemetry: tel,
		Session:   store,
		API:       api,
		Monitor:   monitor,
		Stream:    manager,
		Executor:  exec,
		Binder:    binder.New(manager),
		messages:  make(map[string]*paging.Controller[message.Message]),
		lists:     make(map[string]server.List),
	}

	if cfg.Cache.Enabled {
		db, err := database.Open(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.DB = db
		a.Cache = cache.NewStore(db)
		a.Pruner = cache.NewPruner(a.Cache, cfg.Cache.Retention, cfg.Cache.CleanupInterval)
	}

	wid := cfg.API.WorkspaceID
	a.Channels = newList[channel.Channel](a, cache.Key("channels", wid), mode, func(ctx context.Context, req paging.Request) (paging.Page[channel.Channel], error) {
		return api.ListChannels(ctx, wid, req)
	})
	a.Invitations = newList[invitation.Invitation](a, cache.Key("invitations", wid), mode, func(ctx context.Context, req paging.Request) (paging.Page[invitation.Invitation], error) {
		return api.ListInvitations(ctx, wid, req)
	})
	for _, id := range cfg.API.ChannelIDs {
		a.messageList(id, mode)
	}

	if cfg.Status.Enabled {
		router := server.NewRouter(a, version, cfg.Status.AllowedOrigins, cfg.Telemetry.Enabled)
		a.Server = server.New(cfg.Status.Host, cfg.Status.Port, router)
	}

	return a, nil
}

// newStreamClient has no overall timeout since the event stream stays open;
// only dialing and waiting for response headers are bounded.
func newStreamClient(connectTimeout time.Duration) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: telemetry.NewTransport(base)}
}

func newList[T paging.Item](a *App, name string, mode paging.Mode, fetch paging.Fetcher[T]) *paging.Controller[T] {
	opts := paging.Options[T]{
		Name:     name,
		Fetch:    fetch,
		Executor: a.Executor,
		Mode:     mode,
		PageSize: a.Config.Paging.PageSize,
	}
	if a.Cache != nil {
		opts.Fetch = cache.WriteThrough(a.Cache, name, fetch)
		opts.Fallback = cache.Fallback[T](a.Cache, name)
	}
	c := paging.New(opts)
	a.mu.Lock()
	a.lists[name] = statusList[T]{c}
	a.mu.Unlock()
	return c
}

func (a *App) messageList(channelID string, mode paging.Mode) *paging.Controller[message.Message] {
	a.mu.Lock()
	c, ok := a.messages[channelID]
	a.mu.Unlock()
	if ok {
		return c
	}
	c = newList[message.Message](a, cache.Key("messages", channelID), mode, func(ctx context.Context, req paging.Request) (paging.Page[message.Message], error) {
		return a.API.ListMessages(ctx, channelID, req)
	})
	a.mu.Lock()
	a.messages[channelID] = c
	a.mu.Unlock()
	return c
}

// Messages returns the message list of a synced channel.
func (a *App) Messages(channelID string) (*paging.Controller[message.Message], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.messages[channelID]
	return c, ok
}

// StreamState implements server.Source.
func (a *App) StreamState() stream.State {
	return a.Stream.State()
}

// Lists implements server.Source.
func (a *App) Lists() map[string]server.List {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]server.List, len(a.lists))
	for k, v := range a.lists {
		out[k] = v
	}
	return out
}

// Start binds the lists to the event stream, opens the stream, loads the
// first page of every list and then runs until ctx is done or the status
// server fails.
func (a *App) Start(ctx context.Context) error {
	if a.Pruner != nil {
		go a.Pruner.Start(ctx)
	}

	// Bind before connecting so no event is published without a subscriber.
	a.Binder.Channels(ctx, a.Channels)
	a.Binder.Invitations(ctx, a.Invitations)
	a.mu.Lock()
	for id, c := range a.messages {
		a.Binder.Messages(ctx, id, c)
	}
	a.mu.Unlock()

	if err := a.Stream.Initialize(ctx, a.Session); err != nil {
		return err
	}
	if err := a.Stream.AwaitInitialization(ctx, a.Config.Stream.InitTimeout); err != nil {
		slog.Warn("event stream not connected yet, continuing", "component", "app", "error", err)
	}

	for name, l := range a.Lists() {
		if err := l.Refresh(ctx); err != nil {
			slog.Warn("initial list load failed", "component", "app", "list", name, "error", err)
		}
	}

	slog.Info("enzyme sync started",
		"component", "app",
		"version", a.Version,
		"workspace_id", a.Config.API.WorkspaceID,
		"channels", len(a.Config.API.ChannelIDs),
		"cache", a.Config.Cache.Enabled,
	)

	if a.Server == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops everything Start started. It is safe to call once after
// Start returns or concurrently with it.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.Binder.Close()
	if err := a.Stream.Destroy(); err != nil && !errors.Is(err, stream.ErrNotInitialized) {
		errs = append(errs, err)
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type statusList[T paging.Item] struct {
	c *paging.Controller[T]
}

func (l statusList[T]) Status() server.ListStatus {
	s := l.c.State()
	st := server.ListStatus{
		Name:        l.c.Name(),
		State:       s.Status.String(),
		Items:       len(s.Snapshot.Items),
		HasNextPage: s.Snapshot.HasNextPage,
	}
	if s.Err != nil {
		st.Error = s.Err.Error()
	}
	return st
}

func (l statusList[T]) Refresh(ctx context.Context) error  { return l.c.Refresh(ctx) }
func (l statusList[T]) LoadNext(ctx context.Context) error { return l.c.LoadNext(ctx) }
