package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Snapshotter is the index side of periodic snapshots. *index.Indexer
// implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*store.Snapshot, error)
	LastWrite() time.Time
	LastSnapshot() time.Time
}

// runSnapshots saves a snapshot every interval until ctx is done. Ticks with
// no write since the last snapshot are skipped. Failures are logged; the
// indexer's circuit breaker stops hammering a broken disk.
func runSnapshots(ctx context.Context, target Snapshotter, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !snapshotDue(target) {
				continue
			}
			if _, err := target.Snapshot(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("periodic_snapshot_failed", slog.String("error", err.Error()))
			}
		}
	}
}

func snapshotDue(target Snapshotter) bool {
	last := target.LastWrite()
	return !last.IsZero() && last.After(target.LastSnapshot())
}
