package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Compactor is the index side of compaction. *index.Indexer implements it.
type Compactor interface {
	Compact() int
	Stats() store.Stats
}

// CompactionManager removes tombstoned postings in the background.
//
// Compaction runs automatically when:
//  1. The server has been idle (no searches or writes) for IdleTimeout
//  2. The tombstoned/total document ratio is at least TombstoneThreshold
//  3. At least MinTombstones documents are tombstoned
//  4. Cooldown has elapsed since the last compaction
//
// Readers are never blocked: the store swaps in the compacted state.
type CompactionManager struct {
	config config.CompactionConfig
	target Compactor

	mu          sync.Mutex
	idleTimer   *time.Timer
	compacting  bool
	lastCompact time.Time
	lastRemoved int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCompactionManager creates a manager for target.
func NewCompactionManager(target Compactor, cfg config.CompactionConfig) *CompactionManager {
	return &CompactionManager{config: cfg, target: target}
}

// Start arms the idle timer.
func (m *CompactionManager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()
	slog.Debug("compaction_manager_started",
		slog.Bool("enabled", m.config.Enabled),
		slog.Float64("tombstone_threshold", m.config.TombstoneThreshold),
		slog.Int("min_tombstones", m.config.MinTombstones))
	m.OnActivity()
}

// Stop disarms the timer and waits for a running compaction.
func (m *CompactionManager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		if m.idleTimer != nil {
			m.idleTimer.Stop()
		}
		m.mu.Unlock()
		m.wg.Wait()
	})
}

// OnActivity restarts the idle countdown. Called after every search and
// every ingest run.
func (m *CompactionManager) OnActivity() {
	if !m.config.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}

	idle := m.config.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(idle, m.onIdle)
}

func (m *CompactionManager) onIdle() {
	if !m.shouldCompact() {
		return
	}
	m.mu.Lock()
	if m.compacting {
		m.mu.Unlock()
		return
	}
	m.compacting = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.run("idle")
	}()
}

// shouldCompact applies the cooldown and tombstone thresholds.
func (m *CompactionManager) shouldCompact() bool {
	if !m.config.Enabled {
		return false
	}

	m.mu.Lock()
	last := m.lastCompact
	busy := m.compacting
	stopped := m.ctx == nil || m.ctx.Err() != nil
	m.mu.Unlock()
	if busy || stopped {
		return false
	}
	if !last.IsZero() && time.Since(last) < m.config.Cooldown {
		slog.Debug("compaction_skipped",
			slog.String("reason", "cooldown"),
			slog.Duration("remaining", m.config.Cooldown-time.Since(last)))
		return false
	}

	stats := m.target.Stats()
	if stats.Tombstoned < m.config.MinTombstones {
		slog.Debug("compaction_skipped",
			slog.String("reason", "below_min_tombstones"),
			slog.Int("tombstoned", stats.Tombstoned))
		return false
	}
	if stats.DeadPostings == 0 || stats.TombstoneRatio() < m.config.TombstoneThreshold {
		slog.Debug("compaction_skipped",
			slog.String("reason", "below_threshold"),
			slog.Float64("ratio", stats.TombstoneRatio()))
		return false
	}
	return true
}

// CompactNow compacts immediately, ignoring thresholds and cooldown.
// It returns the number of postings removed.
func (m *CompactionManager) CompactNow() int {
	m.mu.Lock()
	m.compacting = true
	m.mu.Unlock()
	return m.run("manual")
}

// run expects compacting to be set and clears it.
func (m *CompactionManager) run(trigger string) int {
	start := time.Now()
	removed := m.target.Compact()

	m.mu.Lock()
	m.compacting = false
	m.lastCompact = time.Now()
	m.lastRemoved = removed
	m.mu.Unlock()

	slog.Info("compaction_done",
		slog.String("trigger", trigger),
		slog.Int("postings_removed", removed),
		slog.Duration("duration", time.Since(start)))
	return removed
}

// LastCompaction returns when compaction last ran and how many postings
// it removed.
func (m *CompactionManager) LastCompaction() (time.Time, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCompact, m.lastRemoved
}
