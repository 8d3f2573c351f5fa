package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_SetNotifiesWatchers(t *testing.T) {
	s := NewStore(Credentials{AccessToken: "a1"})
	ch, stop := s.Watch()
	defer stop()

	s.Set(Credentials{AccessToken: "a2"})
	s.Set(Credentials{AccessToken: "a3"})

	select {
	case got := <-ch:
		if got.AccessToken != "a3" {
			t.Fatalf("watcher got %q, want latest a3", got.AccessToken)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher not notified")
	}

	stop()
	s.Set(Credentials{AccessToken: "a4"})
	select {
	case got := <-ch:
		t.Fatalf("stopped watcher received %q", got.AccessToken)
	default:
	}
}

func TestStore_Refresh(t *testing.T) {
	s := NewStore(Credentials{AccessToken: "old", RefreshToken: "r1"})
	var gotToken string
	s.SetRefreshFunc(func(_ context.Context, refreshToken string) (Credentials, error) {
		gotToken = refreshToken
		return Credentials{AccessToken: "new"}, nil
	})

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if gotToken != "r1" {
		t.Errorf("refresh token sent = %q, want r1", gotToken)
	}
	cur := s.Current()
	if cur.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", cur.AccessToken)
	}
	if cur.RefreshToken != "r1" {
		t.Errorf("RefreshToken = %q, want the old one kept", cur.RefreshToken)
	}
}

func TestStore_RefreshCoalesces(t *testing.T) {
	s := NewStore(Credentials{AccessToken: "old", RefreshToken: "r1"})
	var calls atomic.Int32
	release := make(chan struct{})
	s.SetRefreshFunc(func(context.Context, string) (Credentials, error) {
		calls.Add(1)
		<-release
		return Credentials{AccessToken: "new", RefreshToken: "r2"}, nil
	})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("refresh func called %d times, want 1", n)
	}
}

func TestStore_RefreshWithoutToken(t *testing.T) {
	s := NewStore(Credentials{AccessToken: "a"})
	s.SetRefreshFunc(func(context.Context, string) (Credentials, error) {
		return Credentials{}, nil
	})
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestStore_RefreshIfExpiring(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)})
	s.now = func() time.Time { return now }
	var calls int
	s.SetRefreshFunc(func(context.Context, string) (Credentials, error) {
		calls++
		return Credentials{AccessToken: "b", ExpiresAt: now.Add(2 * time.Hour)}, nil
	})

	if err := s.RefreshIfExpiring(context.Background()); err != nil || calls != 0 {
		t.Fatalf("fresh token refreshed: calls=%d err=%v", calls, err)
	}

	now = now.Add(59*time.Minute + 45*time.Second)
	if err := s.RefreshIfExpiring(context.Background()); err != nil || calls != 1 {
		t.Fatalf("expiring token not refreshed: calls=%d err=%v", calls, err)
	}
}
