// Package binder feeds live stream events into list controllers.
package binder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/invitation"
	"github.com/enzyme/client/internal/message"
	"github.com/enzyme/client/internal/sse"
	"github.com/enzyme/client/internal/stream"
)

// Target receives the changes for one list. *paging.Controller implements it.
type Target[T any] interface {
	HandleItemCreate(item T)
	HandleItemUpdate(item T)
	HandleItemDelete(id string)
}

// Subscriber opens filtered event subscriptions. *stream.Manager implements it.
type Subscriber interface {
	Subscribe(filter stream.Filter) *stream.Subscription
}

// Binder owns the subscriptions and routing goroutines it starts.
type Binder struct {
	source Subscriber
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs []*stream.Subscription
}

func New(source Subscriber) *Binder {
	return &Binder{source: source}
}

func (b *Binder) Channels(ctx context.Context, target Target[channel.Channel]) {
	start(ctx, b, "channels", stream.ChannelEvents, target, func(ev sse.Event) *channel.Channel { return ev.Channel })
}

func (b *Binder) Invitations(ctx context.Context, target Target[invitation.Invitation]) {
	start(ctx, b, "invitations", stream.InvitationEvents, target, func(ev sse.Event) *invitation.Invitation { return ev.Invitation })
}

// Messages binds the message list of one channel.
func (b *Binder) Messages(ctx context.Context, channelID string, target Target[message.Message]) {
	start(ctx, b, "messages:"+channelID, stream.ChannelMessages(channelID), target, func(ev sse.Event) *message.Message { return ev.Message })
}

// Close ends every subscription and waits for the routing goroutines.
func (b *Binder) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	b.wg.Wait()
}

func start[T any](ctx context.Context, b *Binder, name string, filter stream.Filter, target Target[T], payload func(sse.Event) *T) {
	sub := b.source.Subscribe(filter)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case ev := <-sub.C():
				route(ev, name, target, payload)
			}
		}
	}()
}

func route[T any](ev sse.Event, name string, target Target[T], payload func(sse.Event) *T) {
	if ev.Kind.IsDelete() {
		target.HandleItemDelete(ev.DeletedID)
		return
	}
	item := payload(ev)
	if item == nil {
		slog.Warn("event without payload", "component", "binder", "list", name, "id", ev.ID, "type", ev.Kind.String())
		return
	}
	switch ev.Kind {
	case sse.KindMessageCreated, sse.KindChannelCreated, sse.KindInvitationCreated:
		target.HandleItemCreate(*item)
	default:
		target.HandleItemUpdate(*item)
	}
}
