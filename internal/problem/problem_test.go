package problem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("listing messages: %w", New(RateLimited, nil))
	if got := KindOf(wrapped); got != RateLimited {
		t.Fatalf("KindOf(wrapped) = %v, want rate_limited", got)
	}
	if got := KindOf(errors.New("plain")); got != Unexpected {
		t.Fatalf("KindOf(plain) = %v, want unexpected", got)
	}
	if Is(nil, Unexpected) {
		t.Fatal("Is(nil, ...) should be false")
	}
}

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "chat.example.com"}, Connectivity},
		{"unreachable", fmt.Errorf("dial: %w", syscall.ENETUNREACH), Connectivity},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, Transport},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Transport},
		{"eof", io.ErrUnexpectedEOF, Transport},
		{"deadline", context.DeadlineExceeded, Transport},
		{"other", errors.New("weird"), Unexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(FromTransport(tt.err)); got != tt.want {
				t.Errorf("FromTransport(%v) kind = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromTransport_PassesThroughCancel(t *testing.T) {
	err := FromTransport(fmt.Errorf("get: %w", context.Canceled))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var p *Problem
	if errors.As(err, &p) {
		t.Fatal("cancellation should not be classified")
	}
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		want       Kind
		wantCode   string
		wantRetry  time.Duration
	}{
		{"ok", http.StatusOK, "", "", Unexpected, "", 0},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"NOT_AUTHENTICATED","message":"Authentication required"}}`, "", Auth, "NOT_AUTHENTICATED", 0},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"Too many requests."}}`, "7", RateLimited, "RATE_LIMITED", 7 * time.Second},
		{"server error", http.StatusBadGateway, "upstream down", "", Transport, "", 0},
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"Channel not found"}}`, "", Unexpected, "NOT_FOUND", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if tt.retryAfter != "" {
				rec.Header().Set("Retry-After", tt.retryAfter)
			}
			rec.WriteHeader(tt.status)
			_, _ = rec.WriteString(tt.body)
			resp := rec.Result()

			err := FromResponse(resp)
			if tt.status == http.StatusOK {
				if err != nil {
					t.Fatalf("FromResponse(200) = %v, want nil", err)
				}
				return
			}

			var p *Problem
			if !errors.As(err, &p) {
				t.Fatalf("expected *Problem, got %T", err)
			}
			if p.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", p.Kind, tt.want)
			}
			if p.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", p.Code, tt.wantCode)
			}
			if p.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", p.RetryAfter, tt.wantRetry)
			}
			if p.Status != tt.status {
				t.Errorf("Status = %d, want %d", p.Status, tt.status)
			}
		})
	}
}

func TestProblem_Error(t *testing.T) {
	p := &Problem{Kind: Auth, Status: 401, Message: "Authentication required"}
	if got := p.Error(); !strings.Contains(got, "auth") || !strings.Contains(got, "401") {
		t.Fatalf("Error() = %q", got)
	}
	wrapped := New(Transport, io.EOF)
	if !errors.Is(wrapped, io.EOF) {
		t.Fatal("Problem should unwrap to its cause")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"12", 12 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		if got := ParseRetryAfter(tt.value, now); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
