package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, body string) ([]Frame, error) {
	t.Helper()
	r := NewReader(strings.NewReader(body))
	var frames []Frame
	for {
		f, err := r.Next(context.Background())
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestReader_Frames(t *testing.T) {
	body := "message-created\nid:01A\ndata:{\"id\":\"m1\"}\n\n\n" +
		"event: keep-alive\nid: 01B\ndata: {}\r\n" +
		": heartbeat comment\n\n" +
		"channel-deleted\nid:01C\ndata:\"c1\"\n"

	frames, err := readAll(t, body)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end, got %v", err)
	}

	want := []Frame{
		{ID: "01A", Type: "message-created", Data: `{"id":"m1"}`},
		{ID: "01B", Type: "keep-alive", Data: "{}"},
		{ID: "01C", Type: "channel-deleted", Data: `"c1"`},
	}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d: %+v", len(frames), len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, frames[i], want[i])
		}
	}
}

func TestReader_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id line", "message-created\ndata:{}\n"},
		{"missing data line", "message-created\nid:1\nmessage-updated\n"},
		{"blank line inside frame", "message-created\n\nid:1\ndata:{}\n"},
		{"ends after name", "message-created\n"},
		{"ends after id", "message-created\nid:1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, tt.body)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestReader_EmptyBody(t *testing.T) {
	frames, err := readAll(t, "\n\n")
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %+v", frames)
	}
}

func TestReader_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(pr)

	go func() {
		_, _ = pw.Write([]byte("keep-alive\nid:1\ndata:{}\n"))
		cancel()
		// Unblock the pending read so the reader observes cancellation.
		_, _ = pw.Write([]byte("\n"))
	}()

	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("first frame error = %v", err)
	}
	_, err := r.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReader_IOErrorIsNotMalformed(t *testing.T) {
	r := NewReader(io.MultiReader(strings.NewReader("message-created\n"), errReader{}))
	_, err := r.Next(context.Background())
	if err == nil || errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected raw I/O error, got %v", err)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }
