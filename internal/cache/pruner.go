package cache

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes cached pages older than the retention window on a ticker.
type Pruner struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
}

func NewPruner(store *Store, retention, interval time.Duration) *Pruner {
	return &Pruner{store: store, retention: retention, interval: interval}
}

// Start prunes once, then on every tick until ctx is done. It returns
// immediately when retention or interval is not positive.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 || p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("cache pruner started", "component", "cache", "retention", p.retention)
	p.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("cache pruner stopped", "component", "cache")
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.store.PruneBefore(ctx, p.store.now().Add(-p.retention))
	if err != nil {
		slog.Error("failed to prune cache", "component", "cache", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned cached pages", "component", "cache", "count", n)
	}
}
