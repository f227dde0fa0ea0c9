package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/dedup"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/index"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/watcher"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RatePerSecond = 0
	cfg.QueueSize = 4
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Retry.Jitter = false
	return cfg
}

const sampleEvents = `
{"channel_id":"-100","item_id":1,"caption":"Solo Leveling ch 1","file_id":"F1","media_kind":"file","size_bytes":10,"timestamp":1700000000}
{"channel_id":"-200","item_id":7,"caption":"repost","file_id":"F1","media_kind":"file","timestamp":1700000100}
{not json
{"channel_id":"-100","item_id":2,"caption":"!!!"}
{"channel_id":"-100","item_id":1,"removed":true}
{"channel_id":"-100","item_id":99,"removed":true}
`

func TestOrchestrator_RunCountsEveryOutcome(t *testing.T) {
	// Given: a real indexer and a stream with one of each outcome
	ix := index.New(store.New())
	o := New(ix, testConfig())

	// When: the stream is ingested
	stats, err := o.Run(context.Background(), NewReaderSource("sample", strings.NewReader(sampleEvents)))

	// Then: each event is counted once and bad events do not stop the run
	require.NoError(t, err)
	assert.Equal(t, StatusDone, stats.Status)
	assert.Equal(t, 6, stats.Received)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, stats.Tombstoned)
	assert.Equal(t, 1, stats.Ignored)
	assert.Equal(t, 2, stats.Malformed)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, stats.Received, stats.Processed())
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, "sample", stats.Source)

	st := ix.Store().Stats()
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Tombstoned)
}

type scriptedApplier struct {
	mu       sync.Mutex
	failures map[string]int // item id -> transient failures left
	applied  []string
}

func (a *scriptedApplier) Apply(ev normalize.Event) (index.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := a.failures[ev.Source.ItemID]; n != 0 {
		if n > 0 {
			a.failures[ev.Source.ItemID] = n - 1
		}
		return index.Outcome{}, sferrors.TransientStore("busy", nil)
	}
	a.applied = append(a.applied, ev.Source.ItemID)
	return index.Outcome{Action: dedup.ActionInsert}, nil
}

func events(items ...string) []normalize.Event {
	out := make([]normalize.Event, 0, len(items))
	for _, item := range items {
		out = append(out, normalize.Event{
			Source:  store.SourceRef{ChannelID: "-100", ItemID: item},
			Content: normalize.Text{Body: "title " + item},
		})
	}
	return out
}

func TestOrchestrator_RetriesTransientErrors(t *testing.T) {
	// Given: the store is busy twice for item 1 and always for item 2
	applier := &scriptedApplier{failures: map[string]int{"1": 2, "2": -1}}
	o := New(applier, testConfig())

	// When: three events are ingested
	stats, err := o.Run(context.Background(), NewSliceSource("slice", events("1", "2", "3")))

	// Then: item 1 succeeds after retries, item 2 is skipped, item 3 still runs
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, applier.applied)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2+3, stats.Retries)
}

type blockingApplier struct {
	release chan struct{}
	applied atomic.Int32
}

func (a *blockingApplier) Apply(normalize.Event) (index.Outcome, error) {
	<-a.release
	a.applied.Add(1)
	return index.Outcome{Action: dedup.ActionInsert}, nil
}

type countingSource struct {
	n    int
	sent atomic.Int32
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Stream(ctx context.Context, out chan<- Record) error {
	for _, ev := range events(make([]string, s.n)...) {
		ev.Source.ItemID = "x"
		if err := send(ctx, out, Record{Event: ev}); err != nil {
			return err
		}
		s.sent.Add(1)
	}
	return nil
}

func TestOrchestrator_Backpressure(t *testing.T) {
	// Given: a writer that is stuck and a queue of 4
	applier := &blockingApplier{release: make(chan struct{})}
	src := &countingSource{n: 50}
	o := New(applier, testConfig())

	done := make(chan Stats, 1)
	go func() {
		stats, _ := o.Run(context.Background(), src)
		done <- stats
	}()

	// Then: the reader stops once the queue is full
	time.Sleep(100 * time.Millisecond)
	sent := src.sent.Load()
	assert.LessOrEqual(t, sent, int32(4+1))

	// When: the writer is released everything drains
	close(applier.release)
	select {
	case stats := <-done:
		assert.Equal(t, 50, stats.Inserted)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	applier := &blockingApplier{release: make(chan struct{})}
	o := New(applier, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	var stats Stats
	go func() {
		var err error
		stats, err = o.Run(ctx, &countingSource{n: 100})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(applier.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusError, stats.Status)
		assert.Less(t, stats.Inserted, 100)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestOrchestrator_SourceError(t *testing.T) {
	o := New(&scriptedApplier{}, testConfig())

	_, err := o.Run(context.Background(), NewFileSource(filepath.Join(t.TempDir(), "missing.jsonl")))

	assert.Error(t, err)
}

// failingSource sends its events and then fails.
type failingSource struct {
	events []normalize.Event
	err    error
}

func (s *failingSource) Name() string { return "failing" }

func (s *failingSource) Stream(ctx context.Context, out chan<- Record) error {
	for _, ev := range s.events {
		if err := send(ctx, out, Record{Event: ev}); err != nil {
			return err
		}
	}
	return s.err
}

func TestOrchestrator_QueuedEventsSurviveSourceFailure(t *testing.T) {
	// Given: a source that queues three events and then breaks
	applier := &scriptedApplier{}
	readErr := errors.New("connection reset")
	src := &failingSource{events: events("1", "2", "3"), err: readErr}
	o := New(applier, testConfig())

	// When: the run ends
	stats, err := o.Run(context.Background(), src)

	// Then: the source error is reported after every queued event was applied
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, StatusError, stats.Status)
	assert.Equal(t, []string{"1", "2", "3"}, applier.applied)
	assert.Equal(t, 3, stats.Inserted)
}

func TestOrchestrator_OversizedLineIsCountedAndSkipped(t *testing.T) {
	// Given: a good line, a line over the size limit and another good line
	huge := `{"channel_id":"c","item_id":"2","caption":"` + strings.Repeat("x", 2<<20) + `"}`
	input := `{"channel_id":"c","item_id":"1","caption":"first"}` + "\n" +
		huge + "\n" +
		`{"channel_id":"c","item_id":"3","caption":"third"}` + "\n"
	ix := index.New(store.New())
	o := New(ix, testConfig())

	// When: the stream is ingested
	stats, err := o.Run(context.Background(), NewReaderSource("events.jsonl", strings.NewReader(input)))

	// Then: the long line is malformed and both neighbours are indexed
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 2, ix.Store().Stats().Live)
}

func TestOrchestrator_MissingFileDoesNotStopOtherFiles(t *testing.T) {
	// Given: two readable files around a missing one
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	b := filepath.Join(dir, "b.jsonl")
	require.NoError(t, os.WriteFile(a, []byte(`{"channel_id":"c","item_id":"1","caption":"one"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"channel_id":"c","item_id":"2","caption":"two"}`+"\n"), 0o644))
	applier := &scriptedApplier{}
	o := New(applier, testConfig())

	// When: all three are ingested
	stats, err := o.Run(context.Background(), NewFileSource(a, filepath.Join(dir, "missing.jsonl"), b))

	// Then: the missing file is reported and both readable files are applied
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jsonl")
	assert.Equal(t, []string{"1", "2"}, applier.applied)
	assert.Equal(t, 2, stats.Inserted)
}

func TestReaderSource_LongLineKeepsLineNumbers(t *testing.T) {
	input := strings.Repeat("y", maxLineBytes+10) + "\n" +
		`{"channel_id":"c","item_id":"2","caption":"two"}`
	out := make(chan Record, 4)

	require.NoError(t, NewReaderSource("in", strings.NewReader(input)).Stream(context.Background(), out))
	close(out)

	first, second := <-out, <-out
	assert.Equal(t, sferrors.ErrCodeMalformedInput, sferrors.GetCode(first.Err))
	assert.Equal(t, "in:1", first.Origin)
	require.NoError(t, second.Err)
	assert.Equal(t, "in:2", second.Origin)
	assert.Equal(t, "2", second.Event.Source.ItemID)
}

func TestOrchestrator_ProgressCallback(t *testing.T) {
	var calls atomic.Int32
	o := New(&scriptedApplier{}, testConfig(), WithProgress(func(s Stats) {
		calls.Add(1)
		assert.Equal(t, StatusRunning, s.Status)
	}))

	_, err := o.Run(context.Background(), NewSliceSource("slice", events("1", "2")))

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFileSource_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	b := filepath.Join(dir, "b.jsonl")
	require.NoError(t, os.WriteFile(a, []byte(`{"channel_id":"c","item_id":"1","caption":"one"}`+"\n\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"channel_id":"c","item_id":"2","caption":"two"}`+"\n"), 0o644))
	src := NewFileSource(a, b)
	out := make(chan Record, 10)

	require.NoError(t, src.Stream(context.Background(), out))
	close(out)

	var origins []string
	for rec := range out {
		require.NoError(t, rec.Err)
		origins = append(origins, rec.Origin)
	}
	assert.Equal(t, []string{"a.jsonl:1", "b.jsonl:1"}, origins)
	assert.Equal(t, "2 files", src.Name())
}

func TestRawSource_DecodeErrorsAreRecords(t *testing.T) {
	src := NewRawSource("rpc", [][]byte{
		[]byte(`{"channel_id":"c","item_id":"1","caption":"one"}`),
		[]byte(`{"channel_id":`),
	})
	out := make(chan Record, 2)

	require.NoError(t, src.Stream(context.Background(), out))
	close(out)

	first, second := <-out, <-out
	require.NoError(t, first.Err)
	assert.Equal(t, "1", first.Event.Source.ItemID)
	assert.Equal(t, sferrors.ErrCodeEventDecode, sferrors.GetCode(second.Err))
	assert.Equal(t, "rpc:2", second.Origin)
}

func TestDirSource_IngestsAndMovesFiles(t *testing.T) {
	// Given: an inbox with one event file
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch.jsonl"),
		[]byte(`{"channel_id":"-100","item_id":"5","caption":"Inbox Title"}`+"\n"), 0o644))

	ix := index.New(store.New())
	o := New(ix, testConfig())
	src := NewDirSource(dir, watcher.Options{DebounceWindow: 20 * time.Millisecond, PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, src)
		done <- err
	}()

	// Then: the event is indexed and the file moves to done/
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DoneDir, "batch.jsonl"))
		return err == nil && len(ix.Store().Lookup("inbox")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestRateLimiter(t *testing.T) {
	assert.Greater(t, NewRateLimiter(0, 0).Limit(), 1e300)
	assert.Equal(t, 5.0, NewRateLimiter(5, 1).Limit())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	limited := NewRateLimiter(0.001, 1)
	require.NoError(t, limited.Wait(context.Background()))
	assert.Error(t, limited.Wait(ctx))
}
