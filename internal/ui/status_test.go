package ui

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/cache"
	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
)

func sampleStatus(t *testing.T) daemon.StatusResult {
	t.Helper()
	snap := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(snap, make([]byte, 2048), 0o600))
	return daemon.StatusResult{
		Running: true,
		PID:     42,
		Version: "1.2.0",
		Uptime:  "3m0s",
		Index: store.Stats{
			Documents:  10,
			Live:       8,
			Tombstoned: 2,
			Aliases:    3,
			ByKind:     map[store.MediaKind]int{store.MediaVideo: 5, store.MediaImage: 3},
		},
		Fingerprints: 8,
		Watermark:    17,
		Cache:        cache.Stats{Entries: 4, Hits: 3, Misses: 1},
		Queries: &telemetry.QueryMetricsSnapshot{
			TotalQueries: 4,
			TopTerms:     []telemetry.TermCount{{Term: "linux", Count: 3}},
		},
		LastIngest:   &ingest.Stats{Status: ingest.StatusDone, Inserted: 8, Elapsed: time.Second},
		LastSnapshot: time.Now().Add(-2 * time.Hour),
		SnapshotPath: snap,
		Inbox:        "/var/spool/shadowfinder",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a running server's status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(sampleStatus(t)))

	// Then: every section is present
	out := buf.String()
	assert.Contains(t, out, "shadowfinder 1.2.0")
	assert.Contains(t, out, "running (pid 42, up 3m0s)")
	assert.Contains(t, out, "Tombstoned:   2 (20.0%)")
	assert.Contains(t, out, "image=3 video=5")
	assert.Contains(t, out, "(2.0 KB)")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "75% hit rate")
	assert.Contains(t, out, "linux(3)")
	assert.Contains(t, out, "Done: 8 events")
	assert.Contains(t, out, "/var/spool/shadowfinder")
}

func TestStatusRenderer_Stopped(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(daemon.StatusResult{Version: "dev", SnapshotPath: "/nonexistent/index.db"}))

	assert.Contains(t, buf.String(), "Server:       stopped")
	assert.NotContains(t, buf.String(), "Cache:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON(sampleStatus(t)))

	var decoded daemon.StatusResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 42, decoded.PID)
	assert.Equal(t, 8, decoded.Index.Live)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTime(now.Add(-10*time.Second)))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-90*time.Second)))
	assert.Equal(t, "3 days ago", formatTime(now.Add(-73*time.Hour)))
}
