package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects inbox changes by listing the directory on an
// interval. Used when fsnotify is unavailable.
type PollingWatcher struct {
	interval time.Duration
	opts     Options
	state    map[string]fileState
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	dir      string
}

type fileState struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher. Only files matching
// opts.Pattern are reported.
func NewPollingWatcher(opts Options) *PollingWatcher {
	opts = opts.WithDefaults()
	return &PollingWatcher{
		interval: opts.PollInterval,
		opts:     opts,
		state:    make(map[string]fileState),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records the current contents of dir as the baseline, reporting
// files already present as created, then polls until stopped.
func (p *PollingWatcher) Start(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.mu.Lock()
	p.dir = abs
	p.mu.Unlock()

	if err := p.poll(); err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.emitError(err)
			}
		}
	}
}

func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}

	now := time.Now()
	current := make(map[string]fileState, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !p.opts.matches(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		st := fileState{modTime: info.ModTime(), size: info.Size()}
		current[entry.Name()] = st

		prev, seen := p.state[entry.Name()]
		switch {
		case !seen:
			p.emit(FileEvent{Path: entry.Name(), Operation: OpCreate, Timestamp: now})
		case prev != st:
			p.emit(FileEvent{Path: entry.Name(), Operation: OpModify, Timestamp: now})
		}
	}
	for name := range p.state {
		if _, ok := current[name]; !ok {
			p.emit(FileEvent{Path: name, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit must be called with the lock held.
func (p *PollingWatcher) emit(ev FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.Warn("polling_buffer_full",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()))
	}
}

func (p *PollingWatcher) emitError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.errors <- err:
	default:
	}
}

// Stop stops the polling watcher.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of undebounced file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}
