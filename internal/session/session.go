// Package session holds the signed-in user's tokens. The sync core only reads
// them; refreshing goes through a RefreshFunc supplied by the owner.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoRefreshToken = errors.New("no refresh token")

// refreshSkew renews tokens this long before they actually expire.
const refreshSkew = 30 * time.Second

type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expiring reports whether the access token expires within the refresh skew.
// Tokens without an expiry never expire.
func (c Credentials) Expiring(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.Add(refreshSkew).After(c.ExpiresAt)
}

// Source is the read side consumed by the stream manager and API client.
type Source interface {
	Current() Credentials
}

// RefreshFunc exchanges a refresh token for new credentials.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credentials, error)

type Store struct {
	mu       sync.RWMutex
	creds    Credentials
	watchers map[chan Credentials]struct{}

	refreshMu sync.Mutex
	refresh   RefreshFunc
	now       func() time.Time
}

func NewStore(initial Credentials) *Store {
	return &Store{
		creds:    initial,
		watchers: make(map[chan Credentials]struct{}),
		now:      time.Now,
	}
}

// SetRefreshFunc installs the token exchange. The API client depends on the
// store for its bearer token, so it is wired after construction.
func (s *Store) SetRefreshFunc(fn RefreshFunc) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.refresh = fn
}

func (s *Store) Current() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Set replaces the credentials and notifies watchers. Watchers that have not
// consumed the previous value only see the latest one.
func (s *Store) Set(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c
	}
}

// Watch returns a channel receiving every credential change and a function
// that stops the watch.
func (s *Store) Watch() (<-chan Credentials, func()) {
	ch := make(chan Credentials, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, ch)
			s.mu.Unlock()
		})
	}
}

// Refresh exchanges the refresh token unconditionally. Concurrent callers are
// serialized; a caller that waited behind a successful refresh reuses it.
func (s *Store) Refresh(ctx context.Context) error {
	before := s.Current()

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if cur := s.Current(); cur.AccessToken != before.AccessToken {
		return nil
	}
	if s.refresh == nil || before.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	creds, err := s.refresh(ctx, before.RefreshToken)
	if err != nil {
		return err
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = before.RefreshToken
	}
	s.Set(creds)
	return nil
}

// RefreshIfExpiring refreshes only when the access token is about to expire.
func (s *Store) RefreshIfExpiring(ctx context.Context) error {
	if !s.Current().Expiring(s.now()) {
		return nil
	}
	return s.Refresh(ctx)
}
