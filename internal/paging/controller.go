// Package paging keeps a paginated list consistent with both page fetches
// and live change events. A fetch and an event may race; events seen while a
// page is loading are journaled and replayed against the page that arrives,
// in arrival order.
package paging

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/enzyme/client/internal/request"
	"github.com/enzyme/client/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Status int

const (
	StatusLoading Status = iota
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "loading"
	}
}

type Snapshot[T any] struct {
	Items       []T  `json:"items"`
	HasNextPage bool `json:"has_next_page"`
}

// State is Loading, Loaded or Error over a snapshot. Err is set only for
// StatusError and holds the failure that ended the last load.
type State[T any] struct {
	Status   Status      `json:"-"`
	Snapshot Snapshot[T] `json:"snapshot"`
	Err      error       `json:"-"`
}

// AbsentPolicy decides what an update does when its id is not in the list.
type AbsentPolicy int

const (
	DropAbsent AbsentPolicy = iota
	UpsertAbsent
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

type pendingOp[T Item] struct {
	kind opKind
	item T
	id   string
}

type Options[T Item] struct {
	// Name identifies the list in logs and metrics.
	Name  string
	Fetch Fetcher[T]
	// Fallback serves pages while offline.
	Fallback Fetcher[T]
	Executor *request.Executor
	Mode     Mode
	PageSize int
	Absent   AbsentPolicy
}

type Controller[T Item] struct {
	name     string
	fetch    Fetcher[T]
	fallback Fetcher[T]
	exec     *request.Executor
	mode     Mode
	pageSize int
	absent   AbsentPolicy
	logger   *slog.Logger
	queued   metric.Int64Counter
	attrs    metric.MeasurementOption

	mu       sync.Mutex
	state    State[T]
	pending  []pendingOp[T]
	base     []T // list when the running load began
	fetching bool
	watchers map[chan State[T]]struct{}
}

// New returns a controller in Loading with an empty list. Call Refresh to
// load the first page.
func New[T Item](opts Options[T]) *Controller[T] {
	exec := opts.Executor
	if exec == nil {
		exec = request.NewExecutor(nil, nil, request.Config{})
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Controller[T]{
		name:     opts.Name,
		fetch:    opts.Fetch,
		fallback: opts.Fallback,
		exec:     exec,
		mode:     opts.Mode,
		pageSize: pageSize,
		absent:   opts.Absent,
		logger:   slog.Default().With("component", "paging", "list", opts.Name),
		queued:   telemetry.Counter("paging.updates.queued", "Change events deferred while a page was loading"),
		attrs:    metric.WithAttributes(attribute.String("list", opts.Name)),
		state:    State[T]{Status: StatusLoading},
		watchers: make(map[chan State[T]]struct{}),
	}
}

func (c *Controller[T]) Name() string { return c.name }

// State returns a copy of the current state.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyState()
}

// Subscribe delivers the current state and then every change. A slow
// watcher only sees the latest state. Call stop to end the subscription.
func (c *Controller[T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	ch <- c.copyState()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
		})
	}
}

// Refresh fetches the first page. It is a no-op while another fetch is in
// flight.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	req, ok := c.begin(true)
	if !ok {
		return nil
	}
	return c.load(ctx, req)
}

// LoadMore fetches the page after the current list. It is a no-op while
// Loading. The page replaces the list rather than being appended to it, and
// HasNextPage is not consulted; use LoadNext for that.
func (c *Controller[T]) LoadMore(ctx context.Context) error {
	req, ok := c.begin(false)
	if !ok {
		return nil
	}
	return c.load(ctx, req)
}

// LoadNext is LoadMore gated on the last loaded page reporting a next page.
func (c *Controller[T]) LoadNext(ctx context.Context) error {
	c.mu.Lock()
	done := c.state.Status == StatusLoaded && !c.state.Snapshot.HasNextPage
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.LoadMore(ctx)
}

func (c *Controller[T]) begin(refresh bool) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetching || (!refresh && c.state.Status == StatusLoading) {
		return Request{}, false
	}

	req := Request{Limit: c.pageSize}
	if !refresh {
		req = c.nextRequest()
	}
	c.fetching = true
	c.base = slices.Clone(c.state.Snapshot.Items)
	c.state = State[T]{Status: StatusLoading, Snapshot: c.state.Snapshot}
	c.notify()
	return req, true
}

func (c *Controller[T]) nextRequest() Request {
	req := Request{Limit: c.pageSize}
	items := c.state.Snapshot.Items
	switch c.mode {
	case OffsetMode:
		req.Offset = len(items)
	default:
		if n := len(items); n > 0 {
			req.Cursor = items[n-1].GetID()
		}
	}
	return req
}

func (c *Controller[T]) load(ctx context.Context, req Request) error {
	call := request.Call[Page[T]]{
		Name: c.name,
		Do: func(ctx context.Context) (Page[T], error) {
			return c.fetch(ctx, req)
		},
	}
	if c.fallback != nil {
		call.Fallback = func(ctx context.Context) (Page[T], error) {
			return c.fallback(ctx, req)
		}
	}

	page, err := request.Run(ctx, c.exec, call)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching = false
	if err != nil {
		c.logger.Warn("page load failed", "cursor", req.Cursor, "offset", req.Offset, "error", err)
		// The visible list already holds the journaled changes; replay them
		// over the list the load started from instead.
		c.state = State[T]{
			Status:   StatusError,
			Snapshot: Snapshot[T]{Items: c.base, HasNextPage: c.state.Snapshot.HasNextPage},
			Err:      err,
		}
	} else {
		c.logger.Debug("page loaded", "items", len(page.Items), "has_next_page", page.HasNextPage)
		c.state = State[T]{Status: StatusLoaded, Snapshot: Snapshot[T]{HasNextPage: page.HasNextPage}}
		for _, item := range page.Items {
			c.create(item)
		}
	}
	c.base = nil
	c.drain()
	c.notify()
	return err
}

// drain replays the journal, in arrival order, against the state that ended
// Loading. Callers hold c.mu.
func (c *Controller[T]) drain() {
	if len(c.pending) > 0 {
		c.logger.Debug("replaying deferred changes", "count", len(c.pending))
	}
	for _, op := range c.pending {
		switch op.kind {
		case opCreate:
			c.create(op.item)
		case opUpdate:
			c.update(op.item)
		case opDelete:
			c.remove(op.id)
		}
	}
	c.pending = nil
}

// HandleItemCreate appends item, or replaces it in place if its id is
// already listed. The state variant is unchanged.
func (c *Controller[T]) HandleItemCreate(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == StatusLoading {
		c.pending = append(c.pending, pendingOp[T]{kind: opCreate, item: item})
	}
	c.create(item)
	c.notify()
}

// HandleItemUpdate replaces the item with the same id in place. While
// Loading, an update for an id not yet listed is deferred until the load
// finishes.
func (c *Controller[T]) HandleItemUpdate(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == StatusLoading {
		c.pending = append(c.pending, pendingOp[T]{kind: opUpdate, item: item})
		if c.index(item.GetID()) < 0 {
			c.queued.Add(context.Background(), 1, c.attrs)
			return
		}
		c.replace(item)
		c.notify()
		return
	}
	if c.update(item) {
		c.notify()
	}
}

// HandleItemDelete removes the item with id. While Loading, a delete for an
// id not yet listed is deferred until the load finishes.
func (c *Controller[T]) HandleItemDelete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == StatusLoading {
		c.pending = append(c.pending, pendingOp[T]{kind: opDelete, id: id})
		if c.index(id) < 0 {
			c.queued.Add(context.Background(), 1, c.attrs)
			return
		}
	}
	if c.remove(id) {
		c.notify()
	}
}

func (c *Controller[T]) index(id string) int {
	for i, it := range c.state.Snapshot.Items {
		if it.GetID() == id {
			return i
		}
	}
	return -1
}

func (c *Controller[T]) create(item T) {
	if !c.replace(item) {
		c.state.Snapshot.Items = append(c.state.Snapshot.Items, item)
	}
}

func (c *Controller[T]) update(item T) bool {
	if c.replace(item) {
		return true
	}
	if c.absent == UpsertAbsent {
		c.state.Snapshot.Items = append(c.state.Snapshot.Items, item)
		return true
	}
	return false
}

func (c *Controller[T]) replace(item T) bool {
	i := c.index(item.GetID())
	if i < 0 {
		return false
	}
	c.state.Snapshot.Items[i] = item
	return true
}

func (c *Controller[T]) remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	items := c.state.Snapshot.Items
	c.state.Snapshot.Items = append(items[:i:i], items[i+1:]...)
	return true
}

func (c *Controller[T]) copyState() State[T] {
	s := c.state
	s.Snapshot.Items = append([]T(nil), c.state.Snapshot.Items...)
	return s
}

// notify hands the latest state to watchers, replacing anything unread.
// Callers hold c.mu.
func (c *Controller[T]) notify() {
	if len(c.watchers) == 0 {
		return
	}
	s := c.copyState()
	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
