// Package connectivity answers "is the network usable right now" and lets
// callers block until it is.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

type Monitor interface {
	// Online reports current connectivity.
	Online(ctx context.Context) bool
	// WaitOnline blocks until connectivity is available or ctx is done.
	WaitOnline(ctx context.Context) error
}

// Probe checks device connectivity without touching the API server, so a
// server that refuses connections is not mistaken for being offline. With an
// address it dials that host; without one it looks for a network interface
// that is up and has an address.
type Probe struct {
	addr       string
	interval   time.Duration
	dialer     *net.Dialer
	interfaces func() (int, error)
}

// NewProbe returns a Probe for addr ("host:port"), or an interface check when
// addr is empty.
func NewProbe(addr string, interval, timeout time.Duration) (*Probe, error) {
	if addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("invalid probe address %q: %w", addr, err)
		}
	}
	return &Probe{
		addr:       addr,
		interval:   interval,
		dialer:     &net.Dialer{Timeout: timeout},
		interfaces: usableInterfaces,
	}, nil
}

func (p *Probe) Online(ctx context.Context) bool {
	if p.addr == "" {
		n, err := p.interfaces()
		if err != nil || n == 0 {
			slog.Debug("no usable network interface", "component", "connectivity", "error", err)
			return false
		}
		return true
	}
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		slog.Debug("connectivity probe failed", "component", "connectivity", "addr", p.addr, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

// usableInterfaces counts interfaces that are up, not loopback and carry at
// least one address.
func usableInterfaces() (int, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
			n++
		}
	}
	return n, nil
}

func (p *Probe) WaitOnline(ctx context.Context) error {
	if p.Online(ctx) {
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.Online(ctx) {
				return nil
			}
		}
	}
}

// Manual is a Monitor whose state is set by its owner, for platforms that
// push connectivity changes and for tests.
type Manual struct {
	mu     sync.Mutex
	online bool
	wake   chan struct{} // closed when going online
}

func NewManual(online bool) *Manual {
	m := &Manual{online: online, wake: make(chan struct{})}
	if online {
		close(m.wake)
	}
	return m
}

func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.online {
		return
	}
	m.online = online
	if online {
		close(m.wake)
	} else {
		m.wake = make(chan struct{})
	}
}

func (m *Manual) Online(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) WaitOnline(ctx context.Context) error {
	m.mu.Lock()
	wake := m.wake
	m.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
