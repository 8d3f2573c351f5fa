package stream

import (
	"context"
	"sync"

	"github.com/enzyme/client/internal/sse"
	"github.com/oklog/ulid/v2"
)

// Filter selects the events a subscription receives.
type Filter func(sse.Event) bool

func AllEvents(sse.Event) bool { return true }

func ChannelEvents(ev sse.Event) bool { return ev.Kind.IsChannel() }

func InvitationEvents(ev sse.Event) bool { return ev.Kind.IsInvitation() }

func MessageEvents(ev sse.Event) bool { return ev.Kind.IsMessage() }

// ChannelMessages keeps message events for one channel. Message deletes carry
// no channel, so every delete passes and consumers must tolerate deletes for
// messages they do not hold.
func ChannelMessages(channelID string) Filter {
	return func(ev sse.Event) bool {
		if !ev.Kind.IsMessage() {
			return false
		}
		id, ok := ev.ChannelID()
		return !ok || id == channelID
	}
}

type Subscription struct {
	ID     string
	ch     chan sse.Event
	filter Filter
	done   chan struct{}
	once   sync.Once
	fanout *Fanout
}

// C delivers events in stream order. It is never closed; select on Done too.
func (s *Subscription) C() <-chan sse.Event { return s.ch }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.fanout.remove(s.ID)
	})
}

// Fanout delivers each published event to every subscription whose filter
// accepts it. Delivery blocks on a full subscriber buffer rather than
// dropping, so a subscriber sees every matching event in order.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
}

func NewFanout(buffer int) *Fanout {
	if buffer < 1 {
		buffer = 1
	}
	return &Fanout{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

func (f *Fanout) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = AllEvents
	}
	sub := &Subscription{
		ID:     ulid.Make().String(),
		ch:     make(chan sse.Event, f.buffer),
		filter: filter,
		done:   make(chan struct{}),
		fanout: f,
	}
	f.mu.Lock()
	f.subs[sub.ID] = sub
	f.mu.Unlock()
	return sub
}

// Publish hands ev to every matching subscriber. It returns early with
// ctx.Err() if ctx is cancelled while a subscriber is full.
func (f *Fanout) Publish(ctx context.Context, ev sse.Event) error {
	f.mu.RLock()
	targets := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.filter(ev) {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}
