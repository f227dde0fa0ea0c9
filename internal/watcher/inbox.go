package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InboxWatcher watches one directory, non-recursively, for files matching
// a pattern. It uses fsnotify and falls back to polling.
type InboxWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	opts        Options
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}

	mu      sync.RWMutex
	stopped bool
	dir     string

	droppedBatches atomic.Uint64
}

var _ Watcher = (*InboxWatcher)(nil)

// NewInboxWatcher creates a watcher. It only fails for invalid options;
// if fsnotify cannot be initialized the watcher polls instead.
func NewInboxWatcher(opts Options) (*InboxWatcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	w := &InboxWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
		} else {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	if w.fsWatcher == nil {
		w.pollWatcher = NewPollingWatcher(opts)
	}
	return w, nil
}

// Start watches dir until ctx is cancelled or Stop is called. Files
// already present are reported as created, so nothing dropped into the
// inbox while the watcher was down is missed.
func (w *InboxWatcher) Start(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.dir = abs
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fsWatcher == nil {
		return w.startPolling(ctx)
	}
	return w.startFsnotify(ctx)
}

func (w *InboxWatcher) startFsnotify(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	w.reportExisting()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *InboxWatcher) reportExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.emitError(fmt.Errorf("list inbox: %w", err))
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() && w.opts.matches(entry.Name()) {
			w.debouncer.Add(FileEvent{Path: entry.Name(), Operation: OpCreate, Timestamp: now})
		}
	}
}

func (w *InboxWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				w.debouncer.Add(ev)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	return w.pollWatcher.Start(ctx, w.dir)
}

func (w *InboxWatcher) handle(ev fsnotify.Event) {
	if filepath.Dir(ev.Name) != w.dir {
		return
	}
	name := filepath.Base(ev.Name)
	if !w.opts.matches(name) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	if op.Ready() {
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
	}
	w.debouncer.Add(FileEvent{Path: name, Operation: op, Timestamp: time.Now()})
}

func (w *InboxWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitEvents(batch)
		}
	}
}

func (w *InboxWatcher) emitEvents(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.droppedBatches.Add(1)
		slog.Warn("inbox_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *InboxWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels.
func (w *InboxWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns debounced batches of inbox events.
func (w *InboxWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal errors.
func (w *InboxWatcher) Errors() <-chan error {
	return w.errors
}

// DroppedBatches returns the number of batches dropped because the
// consumer fell behind.
func (w *InboxWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Mode returns "fsnotify" or "polling".
func (w *InboxWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Dir returns the absolute inbox directory.
func (w *InboxWatcher) Dir() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dir
}
