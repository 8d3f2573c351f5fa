package binder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/message"
	"github.com/enzyme/client/internal/sse"
	"github.com/enzyme/client/internal/stream"
)

type recorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *recorder) add(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type messageTarget struct{ recorder }

func (m *messageTarget) HandleItemCreate(it message.Message) { m.add("create " + it.ID) }
func (m *messageTarget) HandleItemUpdate(it message.Message) { m.add("update " + it.ID) }
func (m *messageTarget) HandleItemDelete(id string)          { m.add("delete " + id) }

type channelTarget struct{ recorder }

func (c *channelTarget) HandleItemCreate(it channel.Channel) { c.add("create " + it.ID) }
func (c *channelTarget) HandleItemUpdate(it channel.Channel) { c.add("update " + it.ID) }
func (c *channelTarget) HandleItemDelete(id string)          { c.add("delete " + id) }

func waitOps(t *testing.T, r *recorder, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ops := r.get()
		if len(ops) >= n {
			return ops
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %v, want %d ops", ops, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBinder_RoutesByKindAndChannel(t *testing.T) {
	fanout := stream.NewFanout(8)
	b := New(fanout)
	ctx := context.Background()

	msgs := &messageTarget{}
	chans := &channelTarget{}
	b.Messages(ctx, "c1", msgs)
	b.Channels(ctx, chans)

	events := []sse.Event{
		{ID: "1", Kind: sse.KindMessageCreated, Message: &message.Message{ID: "m1", ChannelID: "c1"}},
		{ID: "2", Kind: sse.KindMessageCreated, Message: &message.Message{ID: "m2", ChannelID: "c2"}},
		{ID: "3", Kind: sse.KindMessageUpdated, Message: &message.Message{ID: "m1", ChannelID: "c1"}},
		{ID: "4", Kind: sse.KindMessageDeleted, DeletedID: "m9"},
		{ID: "5", Kind: sse.KindChannelCreated, Channel: &channel.Channel{ID: "c3"}},
		{ID: "6", Kind: sse.KindChannelUpdated, Channel: &channel.Channel{ID: "c1"}},
		{ID: "7", Kind: sse.KindChannelDeleted, DeletedID: "c3"},
		{ID: "8", Kind: sse.KindMessageUpdated},
	}
	for _, ev := range events {
		if err := fanout.Publish(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	if got := fmt.Sprint(waitOps(t, &msgs.recorder, 3)); got != "[create m1 update m1 delete m9]" {
		t.Errorf("message ops = %s", got)
	}
	if got := fmt.Sprint(waitOps(t, &chans.recorder, 3)); got != "[create c3 update c1 delete c3]" {
		t.Errorf("channel ops = %s", got)
	}

	b.Close()
	if fanout.Len() != 0 {
		t.Errorf("subscriptions left open: %d", fanout.Len())
	}
}

func TestBinder_StopsOnContextCancel(t *testing.T) {
	fanout := stream.NewFanout(1)
	b := New(fanout)
	ctx, cancel := context.WithCancel(context.Background())

	b.Channels(ctx, &channelTarget{})
	cancel()

	done := make(chan struct{})
	go func() {
		b.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after cancel")
	}
}
