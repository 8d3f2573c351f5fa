// Package request runs API calls with connectivity fallback, session refresh
// and rate-limit retries. List controllers reach the network only through it.
package request

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/enzyme/client/internal/connectivity"
	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

var ErrOffline = errors.New("offline")

// Refresher renews the session. *session.Store implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
	RefreshIfExpiring(ctx context.Context) error
}

// Call describes one request. Do is required; everything else is optional.
type Call[T any] struct {
	// Name labels log lines.
	Name string
	Do   func(ctx context.Context) (T, error)
	// Fallback serves the request while offline, typically from the cache.
	Fallback func(ctx context.Context) (T, error)
	// SkipRefresh disables the proactive refresh of expiring credentials.
	SkipRefresh bool
	OnSuccess   func(T)
	OnError     func(error)
}

type Config struct {
	RateLimitDelay      time.Duration
	RateLimitMaxDelay   time.Duration
	RateLimitMaxRetries int
}

type Executor struct {
	monitor   connectivity.Monitor
	refresher Refresher
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
	retries   metric.Int64Counter
}

// NewExecutor builds an executor. A nil monitor assumes the device is always
// online and a nil refresher disables session refresh.
func NewExecutor(monitor connectivity.Monitor, refresher Refresher, cfg Config) *Executor {
	if monitor == nil {
		monitor = connectivity.NewManual(true)
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = time.Second
	}
	if cfg.RateLimitMaxDelay < cfg.RateLimitDelay {
		cfg.RateLimitMaxDelay = cfg.RateLimitDelay
	}
	return &Executor{
		monitor:   monitor,
		refresher: refresher,
		cfg:       cfg,
		sleep:     sleepCtx,
		logger:    slog.Default().With("component", "request"),
		retries:   telemetry.Counter("request.ratelimit.retries", "Requests retried after a rate-limit response"),
	}
}

// Run executes call and reports the outcome both to its continuations and to
// the caller. Rate-limited attempts are retried with capped exponential
// backoff; an auth failure triggers one session refresh and retry.
func Run[T any](ctx context.Context, e *Executor, call Call[T]) (T, error) {
	v, err := run(ctx, e, call)
	if err != nil {
		if call.OnError != nil {
			call.OnError(err)
		}
		return v, err
	}
	if call.OnSuccess != nil {
		call.OnSuccess(v)
	}
	return v, nil
}

func run[T any](ctx context.Context, e *Executor, call Call[T]) (T, error) {
	var zero T
	bo := e.newBackOff()
	refreshed := false
	retries := 0
	for {
		if !e.monitor.Online(ctx) {
			if call.Fallback != nil {
				e.logger.Debug("offline, serving fallback", "call", call.Name)
				return call.Fallback(ctx)
			}
			return zero, problem.New(problem.Connectivity, ErrOffline)
		}

		if e.refresher != nil && !call.SkipRefresh {
			if err := e.refresher.RefreshIfExpiring(ctx); err != nil {
				e.logger.Warn("proactive session refresh failed", "call", call.Name, "error", err)
			}
		}

		v, err := call.Do(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		switch problem.KindOf(err) {
		case problem.RateLimited:
			if retries >= e.cfg.RateLimitMaxRetries {
				e.logger.Warn("rate limit retries exhausted", "call", call.Name, "retries", retries)
				return zero, err
			}
			retries++
			wait := e.rateLimitWait(bo, err)
			e.retries.Add(ctx, 1)
			e.logger.Info("rate limited, retrying", "call", call.Name, "retry", retries, "delay", wait)
			if serr := e.sleep(ctx, wait); serr != nil {
				return zero, serr
			}
			continue

		case problem.Auth:
			if refreshed || e.refresher == nil {
				return zero, err
			}
			refreshed = true
			if rerr := e.refresher.Refresh(ctx); rerr != nil {
				e.logger.Warn("session refresh failed", "call", call.Name, "error", rerr)
				return zero, err
			}
			continue

		case problem.Connectivity:
			if call.Fallback != nil {
				e.logger.Debug("connectivity lost, serving fallback", "call", call.Name, "error", err)
				return call.Fallback(ctx)
			}
		}
		return zero, err
	}
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RateLimitDelay
	bo.MaxInterval = e.cfg.RateLimitMaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// rateLimitWait returns the next jittered delay, raised to the server's
// Retry-After when that is longer and capped at the configured maximum.
func (e *Executor) rateLimitWait(bo *backoff.ExponentialBackOff, err error) time.Duration {
	wait := bo.NextBackOff()
	var p *problem.Problem
	if errors.As(err, &p) && p.RetryAfter > wait {
		wait = p.RetryAfter
	}
	return min(wait, e.cfg.RateLimitMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
