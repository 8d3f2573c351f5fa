package paging

import (
	"context"
	"fmt"
)

// Item is anything a list can hold.
type Item interface {
	GetID() string
}

type Mode int

const (
	CursorMode Mode = iota
	OffsetMode
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "cursor":
		return CursorMode, nil
	case "offset":
		return OffsetMode, nil
	}
	return CursorMode, fmt.Errorf("unknown pagination mode %q", s)
}

func (m Mode) String() string {
	if m == OffsetMode {
		return "offset"
	}
	return "cursor"
}

// Request asks for the page after Cursor (cursor mode) or starting at Offset
// (offset mode). The zero Request is the first page.
type Request struct {
	Cursor string
	Offset int
	Limit  int
}

type Page[T any] struct {
	Items       []T  `json:"items"`
	HasNextPage bool `json:"has_next_page"`
}

// Fetcher loads one page.
type Fetcher[T any] func(ctx context.Context, req Request) (Page[T], error)
