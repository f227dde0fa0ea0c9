package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

func TestPlainRenderer_StartPrintsTitle(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithTitle("events.jsonl")))

	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, "Ingesting events.jsonl\n", buf.String())
}

func TestPlainRenderer_UpdateIsThrottled(t *testing.T) {
	// Given: a renderer with a long interval
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)
	cfg.PlainInterval = time.Hour
	r := NewPlainRenderer(cfg)

	// When: two updates arrive back to back
	r.Update(ingest.Stats{Received: 1, Inserted: 1})
	r.Update(ingest.Stats{Received: 2, Inserted: 2})

	// Then: only the first one is printed
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "received=1 inserted=1")
}

func TestPlainRenderer_UpdateSkipsUnchanged(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)
	cfg.PlainInterval = time.Nanosecond
	r := NewPlainRenderer(cfg)

	r.Update(ingest.Stats{Received: 3})
	time.Sleep(time.Millisecond)
	r.Update(ingest.Stats{Received: 3})

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a finished run
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	stats := ingest.Stats{
		Status:     ingest.StatusDone,
		Received:   6,
		Inserted:   3,
		Merged:     1,
		Tombstoned: 1,
		Malformed:  1,
		Elapsed:    1500 * time.Millisecond,
	}

	// When: completing
	r.Complete(stats)
	r.Update(ingest.Stats{Received: 9})

	// Then: the summary is printed and later updates are dropped
	assert.Equal(t, "Done: 6 events in 1.5s (3 new, 1 merged, 1 removed, 1 rejected)\n", buf.String())
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_CompleteWithError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(ingest.Stats{Status: ingest.StatusError, Error: "source closed"})

	assert.Contains(t, buf.String(), "Stopped: 0 events")
	assert.Contains(t, buf.String(), "error: source closed")
}
