package ratelimit

import (
	"net/http"

	"github.com/enzyme/client/internal/problem"
)

type transport struct {
	limiter *Limiter
	base    http.RoundTripper
}

// Transport paces requests through l before handing them to base, and
// pauses l for the Retry-After of any 429 response. A nil l returns base.
func Transport(l *Limiter, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if l == nil {
		return base
	}
	return &transport{limiter: l, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.Method, req.URL.Path); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.limiter.Pause(problem.ParseRetryAfter(resp.Header.Get("Retry-After"), t.limiter.now()))
	}
	return resp, nil
}
