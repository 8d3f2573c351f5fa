// Package ratelimit paces outbound API requests so the client stays under the
// server's limits, and backs off for the whole client when the server still
// answers 429.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule paces requests whose method and path prefix match. An empty Method
// matches every method.
type Rule struct {
	Method string
	Path   string
	Rate   float64
	Burst  int
}

// Under returns rules with their paths mounted below basePath, for an API
// served under a path prefix such as https://host/enzyme.
func Under(basePath string, rules ...Rule) []Rule {
	basePath = strings.TrimRight(basePath, "/")
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Path = basePath + "/" + strings.TrimLeft(r.Path, "/")
		out[i] = r
	}
	return out
}

type compiledRule struct {
	Rule
	limiter *rate.Limiter
}

type Limiter struct {
	rules    []compiledRule
	fallback *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// NewLimiter paces unmatched requests at rps with the given burst. rps <= 0
// leaves them unpaced.
func NewLimiter(rps float64, burst int, rules []Rule) *Limiter {
	l := &Limiter{
		fallback: newRate(rps, burst),
		now:      time.Now,
	}
	for _, r := range rules {
		l.rules = append(l.rules, compiledRule{Rule: r, limiter: newRate(r.Rate, r.Burst)})
	}
	return l
}

func newRate(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until a request for method and path may be sent.
func (l *Limiter) Wait(ctx context.Context, method, path string) error {
	if d := l.Cooldown(); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return l.match(method, path).Wait(ctx)
}

// Pause holds every request for d. A shorter pause never cuts an existing
// one short.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(d); until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
}

// Cooldown returns how long requests are still paused.
func (l *Limiter) Cooldown() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d := l.pausedUntil.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

func (l *Limiter) match(method, path string) *rate.Limiter {
	for _, r := range l.rules {
		if r.Method != "" && r.Method != method {
			continue
		}
		if strings.HasPrefix(path, r.Path) {
			return r.limiter
		}
	}
	return l.fallback
}
