package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedFrame is returned when an event-name line is not followed by
// an id: line and a data: line.
var ErrMalformedFrame = errors.New("malformed frame")

const maxLineSize = 1 << 20

// Frame is one event as it appears on the wire.
type Frame struct {
	ID   string
	Type string
	Data string
}

// Reader splits a text/event-stream body into frames. Each frame is exactly
// three lines: the event name, "id:<id>" and "data:<json>". Blank lines and
// ":" comment lines between frames are skipped.
type Reader struct {
	sc *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{sc: sc}
}

// Next blocks until the next full frame is read. It returns io.EOF when the
// body ends cleanly between frames and ctx.Err() once ctx is done. A frame
// that stops after its name line wraps ErrMalformedFrame. The reader is not
// usable after Next returns an error.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	var name string
	for name == "" {
		line, err := r.line(ctx)
		if err != nil {
			return Frame{}, err
		}
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		name = eventName(line)
	}

	id, err := r.field(ctx, name, "id")
	if err != nil {
		return Frame{}, err
	}
	data, err := r.field(ctx, name, "data")
	if err != nil {
		return Frame{}, err
	}

	return Frame{ID: id, Type: name, Data: data}, nil
}

func (r *Reader) line(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !r.sc.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSuffix(r.sc.Text(), "\r"), nil
}

// field reads the next line and requires it to be "<key>:<value>". I/O and
// context errors are returned as-is; only a missing field is malformed.
func (r *Reader) field(ctx context.Context, event, key string) (string, error) {
	line, err := r.line(ctx)
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: event %q: stream ended before %s line", ErrMalformedFrame, event, key)
	}
	if err != nil {
		return "", err
	}
	value, ok := strings.CutPrefix(line, key+":")
	if !ok {
		return "", fmt.Errorf("%w: event %q: expected %s line, got %q", ErrMalformedFrame, event, key, line)
	}
	return strings.TrimPrefix(value, " "), nil
}

// eventName accepts both a bare token and the standard "event: token" form.
func eventName(line string) string {
	if v, ok := strings.CutPrefix(line, "event:"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(line)
}
