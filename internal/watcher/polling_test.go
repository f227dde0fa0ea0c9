package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, p *PollingWatcher) FileEvent {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case err := <-p.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for polling event")
	}
	return FileEvent{}
}

func TestPollingWatcher_ReportsExistingAndNewFiles(t *testing.T) {
	// Given: an inbox with one event file and one unrelated file
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.jsonl"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	p := NewPollingWatcher(Options{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()

	// Then: the existing event file is reported first
	ev := nextEvent(t, p)
	assert.Equal(t, "old.jsonl", ev.Path)
	assert.Equal(t, OpCreate, ev.Operation)

	// When: a new event file arrives
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jsonl"), []byte("{}\n"), 0o644))

	// Then: it is reported, and the .txt file never is
	ev = nextEvent(t, p)
	assert.Equal(t, "new.jsonl", ev.Path)
	assert.Equal(t, OpCreate, ev.Operation)

	require.NoError(t, p.Stop())
}

func TestPollingWatcher_DetectsDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	p := NewPollingWatcher(Options{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	assert.Equal(t, OpCreate, nextEvent(t, p).Operation)

	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, p)
	assert.Equal(t, "a.jsonl", ev.Path)
	assert.Equal(t, OpDelete, ev.Operation)
}

func TestPollingWatcher_MissingDir(t *testing.T) {
	p := NewPollingWatcher(DefaultOptions())

	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestOptions_Matches(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.matches("events.jsonl"))
	assert.False(t, opts.matches("events.jsonl.tmp"))
	assert.False(t, opts.matches(".events.jsonl"))
	assert.False(t, opts.matches("events.json"))
	assert.Error(t, Options{Pattern: "["}.Validate())
}
