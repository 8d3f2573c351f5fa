// Package cache stores fetched list pages in sqlite so lists can be served
// while the device is offline.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enzyme/client/internal/database"
	"github.com/enzyme/client/internal/paging"
	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/telemetry"
	"github.com/oklog/ulid/v2"
)

var ErrNotCached = errors.New("page not cached")

type Store struct {
	db  *database.DB
	now func() time.Time
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Key names one list, e.g. "channels:W1" or "messages:C1".
func Key(kind, scope string) string {
	return kind + ":" + scope
}

// Put stores page as the answer to req for the list key, replacing any
// earlier answer.
func (s *Store) Put(ctx context.Context, key string, req paging.Request, items any, hasNextPage bool) error {
	ctx, end := telemetry.StartCacheSpan(ctx, "cache.put")
	defer end()

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding cached page: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cached_pages (id, list_key, page_cursor, page_offset, items, has_next_page, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (list_key, page_cursor, page_offset) DO UPDATE
		SET items = excluded.items, has_next_page = excluded.has_next_page, stored_at = excluded.stored_at
	`, ulid.Make().String(), key, req.Cursor, req.Offset, string(data), hasNextPage,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storing page for %s: %w", key, err)
	}
	return nil
}

// get loads the stored answer to req into items.
func (s *Store) get(ctx context.Context, key string, req paging.Request, items any) (hasNextPage bool, err error) {
	ctx, end := telemetry.StartCacheSpan(ctx, "cache.get")
	defer end()

	var data string
	err = s.db.QueryRowContext(ctx, `
		SELECT items, has_next_page FROM cached_pages
		WHERE list_key = ? AND page_cursor = ? AND page_offset = ?
	`, key, req.Cursor, req.Offset).Scan(&data, &hasNextPage)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotCached
	}
	if err != nil {
		return false, fmt.Errorf("reading page for %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), items); err != nil {
		return false, fmt.Errorf("decoding cached page for %s: %w", key, err)
	}
	return hasNextPage, nil
}

// Delete removes every page of a list.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, end := telemetry.StartCacheSpan(ctx, "cache.delete")
	defer end()
	_, err := s.db.ExecContext(ctx, `DELETE FROM cached_pages WHERE list_key = ?`, key)
	return err
}

// PruneBefore removes pages stored before cutoff and returns how many went.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, end := telemetry.StartCacheSpan(ctx, "cache.prune")
	defer end()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_pages WHERE stored_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get returns the stored page for req.
func Get[T any](ctx context.Context, s *Store, key string, req paging.Request) (paging.Page[T], error) {
	var items []T
	hasNext, err := s.get(ctx, key, req, &items)
	if err != nil {
		return paging.Page[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return paging.Page[T]{Items: items, HasNextPage: hasNext}, nil
}

// WriteThrough wraps fetch so every successful page is stored under key.
// Store failures are logged and never fail the fetch.
func WriteThrough[T any](s *Store, key string, fetch paging.Fetcher[T]) paging.Fetcher[T] {
	return func(ctx context.Context, req paging.Request) (paging.Page[T], error) {
		page, err := fetch(ctx, req)
		if err != nil {
			return page, err
		}
		if perr := s.Put(ctx, key, req, page.Items, page.HasNextPage); perr != nil {
			slog.Warn("failed to cache page", "component", "cache", "list", key, "error", perr)
		}
		return page, nil
	}
}

// Fallback serves pages from the store. A page that was never stored is
// reported as a connectivity problem so the list keeps what it has.
func Fallback[T any](s *Store, key string) paging.Fetcher[T] {
	return func(ctx context.Context, req paging.Request) (paging.Page[T], error) {
		page, err := Get[T](ctx, s, key, req)
		if errors.Is(err, ErrNotCached) {
			return page, problem.New(problem.Connectivity, fmt.Errorf("%s offline: %w", key, err))
		}
		return page, err
	}
}
