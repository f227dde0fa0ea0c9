package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

type fakeCompactor struct {
	mu    sync.Mutex
	stats store.Stats
	calls atomic.Int32
}

func (f *fakeCompactor) Compact() int {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := f.stats.DeadPostings
	f.stats.DeadPostings = 0
	return removed
}

func (f *fakeCompactor) Stats() store.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func compactionConfig() config.CompactionConfig {
	return config.CompactionConfig{
		Enabled:            true,
		TombstoneThreshold: 0.2,
		MinTombstones:      2,
		IdleTimeout:        20 * time.Millisecond,
		Cooldown:           time.Hour,
	}
}

func TestCompactionManager_StartStopIdempotent(t *testing.T) {
	m := NewCompactionManager(&fakeCompactor{}, compactionConfig())
	m.Start(context.Background())

	m.Stop()
	m.Stop()
	m.OnActivity()
}

func TestCompactionManager_CompactsWhenIdle(t *testing.T) {
	target := &fakeCompactor{stats: store.Stats{Documents: 10, Tombstoned: 5, DeadPostings: 12}}
	m := NewCompactionManager(target, compactionConfig())
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		at, removed := m.LastCompaction()
		return !at.IsZero() && removed == 12
	}, time.Second, 5*time.Millisecond)

	// Cooldown holds off the next idle compaction.
	m.OnActivity()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestCompactionManager_ActivityPostponesCompaction(t *testing.T) {
	target := &fakeCompactor{stats: store.Stats{Documents: 10, Tombstoned: 5, DeadPostings: 12}}
	cfg := compactionConfig()
	cfg.IdleTimeout = 80 * time.Millisecond
	m := NewCompactionManager(target, cfg)
	m.Start(context.Background())
	defer m.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		m.OnActivity()
	}
	assert.Zero(t, target.calls.Load(), "busy server must not compact")

	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCompactionManager_ShouldCompact(t *testing.T) {
	tests := []struct {
		name  string
		stats store.Stats
		cfg   func(*config.CompactionConfig)
		want  bool
	}{
		{"above threshold", store.Stats{Documents: 10, Tombstoned: 3, DeadPostings: 4}, nil, true},
		{"below threshold", store.Stats{Documents: 100, Tombstoned: 3, DeadPostings: 4}, nil, false},
		{"below min tombstones", store.Stats{Documents: 2, Tombstoned: 1, DeadPostings: 1}, nil, false},
		{"already compacted", store.Stats{Documents: 10, Tombstoned: 5}, nil, false},
		{"disabled", store.Stats{Documents: 10, Tombstoned: 5, DeadPostings: 5},
			func(c *config.CompactionConfig) { c.Enabled = false }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := compactionConfig()
			cfg.IdleTimeout = time.Hour
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			m := NewCompactionManager(&fakeCompactor{stats: tt.stats}, cfg)
			m.Start(context.Background())
			defer m.Stop()

			assert.Equal(t, tt.want, m.shouldCompact())
		})
	}
}

func TestCompactionManager_ShouldCompact_FalseAfterStop(t *testing.T) {
	m := NewCompactionManager(&fakeCompactor{stats: store.Stats{Documents: 10, Tombstoned: 5, DeadPostings: 5}}, compactionConfig())
	m.Start(context.Background())
	m.Stop()

	assert.False(t, m.shouldCompact())
}

func TestCompactionManager_CompactNowIgnoresThresholds(t *testing.T) {
	target := &fakeCompactor{stats: store.Stats{Documents: 100, Tombstoned: 1, DeadPostings: 3}}
	m := NewCompactionManager(target, compactionConfig())

	removed := m.CompactNow()

	assert.Equal(t, 3, removed)
	at, n := m.LastCompaction()
	assert.False(t, at.IsZero())
	assert.Equal(t, 3, n)
}
