package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/cache"
	"github.com/anupammaurya6767/shadowfinder/internal/index"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Integration tests run events through ingestion, indexing and search
// with real components wired the way the server wires them.

type pipeline struct {
	indexer *index.Indexer
	engine  *search.Engine
	orch    *ingest.Orchestrator
	cache   *cache.Cache[*search.Result]
	snap    *store.SnapshotStore
}

func newPipeline(t *testing.T, snapshotPath string) *pipeline {
	t.Helper()
	results := cache.New[*search.Result](1000, time.Minute)
	snaps := store.NewSnapshotStore(snapshotPath, "sqlite")
	st := store.New()
	ix := index.New(st, index.WithInvalidator(results), index.WithSnapshots(snaps))
	engine := search.NewEngine(st, search.DefaultConfig(),
		search.WithCache(results),
		search.WithCursorKey([]byte("integration")))

	cfg := ingest.DefaultConfig()
	cfg.RatePerSecond = 1e6
	cfg.Burst = 1000
	return &pipeline{
		indexer: ix,
		engine:  engine,
		orch:    ingest.New(ix, cfg),
		cache:   results,
		snap:    snaps,
	}
}

func (p *pipeline) ingest(t *testing.T, events ...normalize.Event) ingest.Stats {
	t.Helper()
	stats, err := p.orch.Run(context.Background(), ingest.NewSliceSource("test", events))
	require.NoError(t, err)
	return stats
}

func (p *pipeline) search(t *testing.T, q search.Query) *search.Result {
	t.Helper()
	res, err := p.engine.Search(context.Background(), q)
	require.NoError(t, err)
	return res
}

func post(channel string, item int, caption, fileID string, at time.Time) normalize.Event {
	return normalize.Event{
		Source:    store.SourceRef{ChannelID: channel, ItemID: fmt.Sprint(item)},
		Content:   normalize.Media{MediaKind: store.MediaFile, Caption: caption, FileID: fileID, SizeBytes: 1024},
		Timestamp: at,
	}
}

func removal(channel string, item int) normalize.Event {
	return normalize.Event{
		Source:  store.SourceRef{ChannelID: channel, ItemID: fmt.Sprint(item)},
		Removed: true,
	}
}

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestPipeline_RepostIsFoundFromEitherChannel(t *testing.T) {
	// Given: a post and its repost in another channel
	p := newPipeline(t, filepath.Join(t.TempDir(), "snapshot.db"))
	stats := p.ingest(t,
		post("-100", 1, "Solo Leveling ch 1", "F1", base),
		post("-200", 7, "solo leveling chapter one mirror", "F1", base.Add(time.Hour)),
	)

	// Then: one document exists, merged under the first sighting
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Merged)

	res := p.search(t, search.Query{Text: "solo leveling"})
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "-100", res.Hits[0].SourceRef.ChannelID)
	assert.Equal(t, []store.SourceRef{{ChannelID: "-200", ItemID: "7"}}, res.Hits[0].AliasRefs)

	// And: a channel filter on the repost channel still finds it
	res = p.search(t, search.Query{Text: "solo", Filters: search.Filters{Channel: "-200"}})
	assert.Len(t, res.Hits, 1)
}

func TestPipeline_WriteInvalidatesCachedPage(t *testing.T) {
	// Given: a cached result page
	p := newPipeline(t, filepath.Join(t.TempDir(), "snapshot.db"))
	p.ingest(t, post("-100", 1, "Naruto ep 1", "V1", base))

	first := p.search(t, search.Query{Text: "naruto"})
	require.Len(t, first.Hits, 1)
	again := p.search(t, search.Query{Text: "naruto"})
	assert.True(t, again.Cached)

	// When: a matching document is added
	p.ingest(t, post("-100", 2, "Naruto ep 2", "V2", base.Add(time.Hour)))

	// Then: the next search is recomputed and sees it
	res := p.search(t, search.Query{Text: "naruto"})
	assert.False(t, res.Cached)
	assert.Len(t, res.Hits, 2)

	// When: one is removed at the source
	p.ingest(t, removal("-100", 1))

	// Then: it disappears from results
	res = p.search(t, search.Query{Text: "naruto"})
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Naruto ep 2", res.Hits[0].Title)
}

func TestPipeline_PaginationUnderConcurrentIngest(t *testing.T) {
	// Given: forty matching documents
	p := newPipeline(t, filepath.Join(t.TempDir(), "snapshot.db"))
	var events []normalize.Event
	for i := range 40 {
		events = append(events, post("-100", i+1, fmt.Sprintf("One Piece chapter %d", i+1), fmt.Sprintf("OP%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	p.ingest(t, events...)
	originals := make(map[store.DocID]bool)
	for _, h := range p.search(t, search.Query{Text: "one piece chapter", PageSize: 100}).Hits {
		originals[h.ID] = true
	}
	require.Len(t, originals, 40)

	// When: paging through while older matches keep arriving
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil && i < 200; i++ {
			_, _ = p.indexer.Apply(post("-300", i+1, fmt.Sprintf("One Piece chapter extra %d", i), fmt.Sprintf("X%d", i), base.Add(-time.Duration(i+1)*time.Hour)))
		}
	}()

	seen := make(map[store.DocID]bool)
	cursor := ""
	for pages := 0; pages < 100; pages++ {
		res, err := p.engine.Search(context.Background(), search.Query{Text: "one piece chapter", Cursor: cursor, PageSize: 7})
		require.NoError(t, err)
		for _, h := range res.Hits {
			assert.False(t, seen[h.ID], "document %d served twice", h.ID)
			seen[h.ID] = true
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	cancel()
	wg.Wait()

	// Then: every original document was served, none twice
	for id := range originals {
		assert.True(t, seen[id], "document %d skipped", id)
	}
}

func TestPipeline_SnapshotRestoreServesSameResults(t *testing.T) {
	// Given: an index with an alias and a tombstone, snapshotted
	path := filepath.Join(t.TempDir(), "snapshot.db")
	p := newPipeline(t, path)
	p.ingest(t,
		post("-100", 1, "Attack on Titan S4", "A1", base),
		post("-200", 3, "aot mirror", "A1", base.Add(time.Hour)),
		post("-100", 2, "Attack on Titan S3", "A2", base.Add(-24*time.Hour)),
		post("-100", 4, "Attack on Titan OVA", "A3", base.Add(-48*time.Hour)),
		removal("-100", 4),
	)
	before := p.search(t, search.Query{Text: "attack titan"})
	_, err := p.indexer.Snapshot(context.Background())
	require.NoError(t, err)

	// When: a fresh pipeline restores it
	restored := newPipeline(t, path)
	n, err := restored.indexer.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "tombstoned documents are kept")

	// Then: the same query ranks the same documents
	after := restored.search(t, search.Query{Text: "attack titan"})
	assert.Equal(t, before.IDs(), after.IDs())
	assert.Equal(t, before.Hits[0].AliasRefs, after.Hits[0].AliasRefs)

	// And: the repost is still recognised as a duplicate
	stats := restored.ingest(t, post("-300", 9, "another mirror", "A1", base.Add(2*time.Hour)))
	assert.Equal(t, 1, stats.Merged)
}
