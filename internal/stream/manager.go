// Package stream keeps one long-lived event stream open to the server and
// fans its decoded events out to subscribers.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/enzyme/client/internal/connectivity"
	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/session"
	"github.com/enzyme/client/internal/sse"
	"github.com/enzyme/client/internal/telemetry"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrAlreadyInitialized    = errors.New("stream already initialized")
	ErrNotInitialized        = errors.New("stream not initialized")
	ErrInitializationTimeout = errors.New("stream initialization timed out")
)

// Refresher renews the session after the server rejects the stream with 401.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	// URL is the workspace events endpoint.
	URL string
	// Client must not set a Timeout: the response body stays open for the
	// life of the connection.
	Client         *http.Client
	Monitor        connectivity.Monitor
	Refresher      Refresher
	ReconnectDelay time.Duration
	Buffer         int
	// Sleep defaults to a timer wait. Tests replace it to observe backoff.
	Sleep SleepFunc
}

var (
	attemptAttrsOK      = metric.WithAttributes(attribute.String("result", "ok"))
	attemptAttrsFailed  = metric.WithAttributes(attribute.String("result", "failed"))
	skippedAttrsUnknown = metric.WithAttributes(attribute.String("reason", "unknown_type"))
	skippedAttrsPayload = metric.WithAttributes(attribute.String("reason", "invalid_payload"))
)

type Manager struct {
	url       string
	client    *http.Client
	monitor   connectivity.Monitor
	refresher Refresher
	delay     time.Duration
	sleep     SleepFunc
	fanout    *Fanout
	logger    *slog.Logger

	mu        sync.Mutex
	creds     session.Source
	cancel    context.CancelFunc
	done      chan struct{}
	connected chan struct{}
	opened    bool
	state     State

	attempts metric.Int64Counter
	received metric.Int64Counter
	skipped  metric.Int64Counter
}

func NewManager(opts Options) *Manager {
	client := opts.Client
	if client == nil {
		client = &http.Client{Transport: telemetry.NewTransport(http.DefaultTransport)}
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = connectivity.NewManual(true)
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = timerSleep
	}
	return &Manager{
		url:       opts.URL,
		client:    client,
		monitor:   monitor,
		refresher: opts.Refresher,
		delay:     delay,
		sleep:     sleep,
		fanout:    NewFanout(opts.Buffer),
		logger:    slog.Default().With("component", "stream"),
		state:     State{StatusName: Disconnected.String()},
		attempts:  telemetry.Counter("stream.connect.attempts", "Event stream connection attempts"),
		received:  telemetry.Counter("stream.events.received", "Events decoded from the stream"),
		skipped:   telemetry.Counter("stream.frames.skipped", "Frames dropped because they could not be decoded"),
	}
}

// Initialize starts the listening task. Only one task may run at a time; call
// Destroy before initializing again.
func (m *Manager) Initialize(ctx context.Context, creds session.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// done stays set until a Destroy in progress has finished.
	if m.cancel != nil || m.done != nil {
		return ErrAlreadyInitialized
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.creds = creds
	m.cancel = cancel
	m.done = make(chan struct{})
	m.connected = make(chan struct{})
	m.opened = false
	m.state = State{StatusName: Disconnected.String()}

	go m.listen(ctx, m.done)
	return nil
}

// AwaitInitialization blocks until the first stream response has been
// accepted, the timeout elapses, or ctx is done.
func (m *Manager) AwaitInitialization(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	connected := m.connected
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-connected:
		return nil
	case <-timer.C:
		return ErrInitializationTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy cancels the listening task, waits for it to exit and clears the
// connection state, including the resumption cursor. Of concurrent callers
// only the first does the work; the others get ErrNotInitialized.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return ErrNotInitialized
	}

	cancel()
	<-done

	m.mu.Lock()
	m.done = nil
	m.creds = nil
	m.state = State{StatusName: Disconnected.String()}
	m.mu.Unlock()
	return nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cursor returns the id of the last frame consumed, or "".
func (m *Manager) Cursor() string {
	return m.State().LastEventID
}

func (m *Manager) Subscribe(filter Filter) *Subscription {
	return m.fanout.Subscribe(filter)
}

func (m *Manager) Events() *Subscription { return m.fanout.Subscribe(AllEvents) }

func (m *Manager) ChannelEvents() *Subscription { return m.fanout.Subscribe(ChannelEvents) }

func (m *Manager) InvitationEvents() *Subscription { return m.fanout.Subscribe(InvitationEvents) }

func (m *Manager) MessageEvents() *Subscription { return m.fanout.Subscribe(MessageEvents) }

func (m *Manager) ChannelMessageEvents(channelID string) *Subscription {
	return m.fanout.Subscribe(ChannelMessages(channelID))
}

func (m *Manager) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := backoff.WithContext(backoff.NewConstantBackOff(m.delay), ctx)
	// refreshed is set after a 401 was answered by an immediate reconnect. A
	// second 401 in a row waits out the backoff like any other failure.
	refreshed := false
	for {
		m.setStatus(Connecting, nil)
		err := m.connect(ctx)
		if ctx.Err() != nil {
			m.setStatus(Disconnected, nil)
			return
		}
		m.attempts.Add(ctx, 1, attemptAttrsFailed)
		m.setStatus(ReconnectWaiting, err)

		unauthorized := problem.Is(err, problem.Auth)
		if unauthorized && m.refresher != nil {
			rerr := m.refresher.Refresh(ctx)
			switch {
			case rerr != nil:
				m.logger.Warn("stream unauthorized, session refresh failed", "error", rerr)
			case !refreshed:
				refreshed = true
				m.logger.Info("stream unauthorized, session refreshed")
				continue
			default:
				m.logger.Warn("stream still unauthorized after refresh")
			}
		}
		if !unauthorized {
			refreshed = false
		}

		if !m.monitor.Online(ctx) {
			m.logger.Info("offline, waiting for connectivity", "error", err)
			if werr := m.monitor.WaitOnline(ctx); werr != nil {
				m.setStatus(Disconnected, nil)
				return
			}
			continue
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			m.setStatus(Disconnected, nil)
			return
		}
		m.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"kind", problem.KindOf(err).String(),
			"delay", wait,
		)
		if serr := m.sleep(ctx, wait); serr != nil {
			m.setStatus(Disconnected, nil)
			return
		}
	}
}

// connect runs one attempt: it opens the stream and consumes frames until
// the body ends or fails. The returned error is never nil.
func (m *Manager) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return problem.New(problem.Unexpected, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-Id", ulid.Make().String())
	if creds := m.currentCreds(); creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}
	if cursor := m.Cursor(); cursor != "" {
		req.Header.Set("Last-Event-ID", cursor)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return problem.FromTransport(err)
	}
	defer resp.Body.Close()
	if err := problem.FromResponse(resp); err != nil {
		return err
	}

	m.attempts.Add(ctx, 1, attemptAttrsOK)
	m.markConnected()
	m.logger.Info("stream connected", "last_event_id", m.Cursor())

	reader := sse.NewReader(resp.Body)
	for {
		frame, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, sse.ErrMalformedFrame) {
				return problem.New(problem.Protocol, err)
			}
			return problem.FromTransport(err)
		}

		ev, err := sse.Decode(frame)
		if err != nil {
			attrs := skippedAttrsPayload
			if errors.Is(err, sse.ErrUnknownType) {
				attrs = skippedAttrsUnknown
			}
			m.skipped.Add(ctx, 1, attrs)
			m.logger.Warn("skipping undecodable frame", "id", frame.ID, "type", frame.Type, "error", err)
			m.advance(frame.ID)
			continue
		}

		m.advance(ev.ID)
		if ev.Kind == sse.KindKeepAlive {
			continue
		}
		m.received.Add(ctx, 1, metric.WithAttributes(attribute.String("type", ev.Kind.String())))
		if err := m.fanout.Publish(ctx, ev); err != nil {
			return err
		}
	}
}

func (m *Manager) currentCreds() session.Credentials {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	if creds == nil {
		return session.Credentials{}
	}
	return creds.Current()
}

// advance moves the cursor to id. Empty ids leave it where it is.
func (m *Manager) advance(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	m.state.LastEventID = id
	m.mu.Unlock()
}

func (m *Manager) markConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		m.opened = true
		close(m.connected)
	}
	m.state.Status = Streaming
	m.state.StatusName = Streaming.String()
	m.state.LastError = ""
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Status = s
	m.state.StatusName = s.String()
	if s == Connecting {
		m.state.Attempts++
	}
	if err != nil {
		m.state.LastError = err.Error()
	}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
