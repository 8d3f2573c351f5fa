// Package problem classifies failures of network calls into the kinds the
// sync core reacts to: connectivity, transport, protocol, auth, rate limiting
// and everything else.
package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

type Kind int

const (
	Unexpected Kind = iota
	Connectivity
	Transport
	Protocol
	Auth
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case Connectivity:
		return "connectivity"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Auth:
		return "auth"
	case RateLimited:
		return "rate_limited"
	default:
		return "unexpected"
	}
}

// Problem is a classified failure. Status and Code are set when the failure
// came from an HTTP response; RetryAfter only for rate limiting.
type Problem struct {
	Kind       Kind
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (p *Problem) Error() string {
	switch {
	case p.Message != "" && p.Status != 0:
		return fmt.Sprintf("%s: %d %s", p.Kind, p.Status, p.Message)
	case p.Message != "":
		return fmt.Sprintf("%s: %s", p.Kind, p.Message)
	case p.Err != nil:
		return fmt.Sprintf("%s: %v", p.Kind, p.Err)
	default:
		return p.Kind.String()
	}
}

func (p *Problem) Unwrap() error {
	return p.Err
}

func New(kind Kind, err error) *Problem {
	return &Problem{Kind: kind, Err: err}
}

// KindOf reports the kind of the first Problem in err's chain, or Unexpected.
func KindOf(err error) Kind {
	var p *Problem
	if errors.As(err, &p) {
		return p.Kind
	}
	return Unexpected
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromTransport classifies an error returned by http.Client.Do or by reading
// a response body. Context cancellation is passed through unchanged so callers
// can tell shutdown apart from network failure.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var p *Problem
	if errors.As(err, &p) {
		return err
	}
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		return New(Connectivity, err)
	case errors.As(err, &opErr),
		errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, context.DeadlineExceeded):
		return New(Transport, err)
	}
	return New(Unexpected, err)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FromResponse classifies a non-2xx response, decoding the API's
// {"error":{"code","message"}} body when present. It returns nil for 2xx.
// The body is read but not closed.
func FromResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	p := &Problem{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error.Code != "" {
		p.Code = body.Error.Code
		if body.Error.Message != "" {
			p.Message = body.Error.Message
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		p.Kind = Auth
	case resp.StatusCode == http.StatusTooManyRequests || p.Code == "RATE_LIMITED":
		p.Kind = RateLimited
		p.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500:
		p.Kind = Transport
	default:
		p.Kind = Unexpected
	}
	return p
}
