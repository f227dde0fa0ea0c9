// Package index applies content events to the index: the write path that
// runs normalization, deduplication, the store write and cache
// invalidation as one step, plus snapshot save, restore and rebuild.
package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/dedup"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
)

// Invalidator drops cached results for a channel.
type Invalidator interface {
	Invalidate(channel string)
}

// Outcome describes what one event did.
type Outcome struct {
	Action dedup.Action
	ID     store.DocID
	Source store.SourceRef
	// Changed is false for a merge of an already known sighting.
	Changed bool
}

// Indexer is the single writer. Apply calls are serialized; readers use
// the store directly and never wait on the Indexer.
type Indexer struct {
	mu          sync.Mutex
	store       *store.Store
	dedup       *dedup.Deduplicator
	normalizer  *normalize.Normalizer
	invalidator Invalidator
	snapshots   *store.SnapshotStore
	breaker     *sferrors.CircuitBreaker
	prom        *telemetry.Prometheus
	allowed     func(channel string) bool

	lastWrite    atomic.Int64
	lastSnapshot atomic.Int64
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithInvalidator sets the cache to invalidate after each write.
func WithInvalidator(inv Invalidator) Option {
	return func(ix *Indexer) {
		ix.invalidator = inv
	}
}

// WithSnapshots enables Snapshot, Restore and Rebuild.
func WithSnapshots(s *store.SnapshotStore) Option {
	return func(ix *Indexer) {
		ix.snapshots = s
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(ix *Indexer) {
		ix.normalizer = n
	}
}

// WithChannelFilter ignores events from channels for which allowed
// returns false.
func WithChannelFilter(allowed func(channel string) bool) Option {
	return func(ix *Indexer) {
		ix.allowed = allowed
	}
}

// WithPrometheus records snapshot outcomes.
func WithPrometheus(p *telemetry.Prometheus) Option {
	return func(ix *Indexer) {
		ix.prom = p
	}
}

// New creates an Indexer writing to st.
func New(st *store.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		store:      st,
		dedup:      dedup.New(),
		normalizer: normalize.New(),
		breaker: sferrors.NewCircuitBreaker("snapshot",
			sferrors.WithMaxFailures(3),
			sferrors.WithResetTimeout(time.Minute)),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Store returns the underlying store for readers.
func (ix *Indexer) Store() *store.Store {
	return ix.store
}

// Stats summarizes the current index contents.
func (ix *Indexer) Stats() store.Stats {
	return ix.store.Stats()
}

// Fingerprints returns the number of known fingerprints.
func (ix *Indexer) Fingerprints() int {
	return ix.dedup.Len()
}

// LastWrite returns the time of the last successful write, zero if none.
func (ix *Indexer) LastWrite() time.Time {
	return unixNano(ix.lastWrite.Load())
}

// LastSnapshot returns the time of the last successful snapshot.
func (ix *Indexer) LastSnapshot() time.Time {
	return unixNano(ix.lastSnapshot.Load())
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Apply normalizes ev and applies it. Malformed events fail with a
// MalformedInput error; a store being rebuilt fails with TransientStore.
func (ix *Indexer) Apply(ev normalize.Event) (Outcome, error) {
	c, err := ix.normalizer.Normalize(ev)
	if err != nil {
		return Outcome{Source: ev.Source}, err
	}
	return ix.ApplyCandidate(c)
}

// ApplyCandidate resolves and applies a normalized candidate. The store
// write and its dedup bookkeeping happen under one lock, and the cache is
// invalidated before the call returns.
func (ix *Indexer) ApplyCandidate(c *normalize.Candidate) (Outcome, error) {
	if ix.allowed != nil && !ix.allowed(c.Source.ChannelID) {
		return Outcome{Action: dedup.ActionIgnore, Source: c.Source}, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	d := ix.dedup.Resolve(c)
	out := Outcome{Action: d.Action, ID: d.ExistingID, Source: c.Source}

	switch d.Action {
	case dedup.ActionInsert:
		id, err := ix.store.Insert(c.Document())
		if err != nil {
			return out, err
		}
		ix.dedup.Register(c.Fingerprint, id, c.Source)
		out.ID, out.Changed = id, true
		ix.invalidate(c.Source.ChannelID)

	case dedup.ActionMerge:
		added, err := ix.store.AddAlias(d.ExistingID, c.Source)
		if err != nil {
			return out, err
		}
		ix.dedup.AddSighting(c.Source, d.ExistingID)
		out.Changed = added
		if added {
			ix.invalidate(c.Source.ChannelID)
		}

	case dedup.ActionTombstone:
		doc, ok := ix.store.Get(d.ExistingID)
		if !ok {
			return out, sferrors.IndexCorruption("fingerprint map references a missing document").
				WithDetail("doc_id", d.ExistingID.String())
		}
		if err := ix.store.Tombstone(d.ExistingID); err != nil {
			return out, err
		}
		out.Changed = !doc.Tombstoned
		if out.Changed {
			for _, ch := range doc.Channels() {
				ix.invalidate(ch)
			}
		}

	case dedup.ActionIgnore:
		return out, nil
	}

	if out.Changed {
		ix.lastWrite.Store(time.Now().UnixNano())
	}
	return out, nil
}

func (ix *Indexer) invalidate(channel string) {
	if ix.invalidator != nil {
		ix.invalidator.Invalidate(channel)
	}
}

// Compact removes tombstoned postings. Returns the number removed.
func (ix *Indexer) Compact() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := ix.store.Compact()
	if ix.prom != nil {
		ix.prom.ObserveCompaction()
	}
	return removed
}

// capture takes a consistent copy of the store and fingerprint map.
func (ix *Indexer) capture() *store.Snapshot {
	ix.mu.Lock()
	view := ix.store.View()
	fps := ix.dedup.Export()
	ix.mu.Unlock()
	return view.Capture(fps)
}

// Snapshot writes the recovery snapshot. Repeated failures open a circuit
// breaker and further attempts fail fast until it resets.
func (ix *Indexer) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	if ix.snapshots == nil {
		return nil, sferrors.Newf(sferrors.ErrCodeSnapshotFailed, "no snapshot path configured")
	}
	snap := ix.capture()
	err := ix.breaker.Execute(func() error {
		return ix.snapshots.Save(ctx, snap)
	})
	if ix.prom != nil {
		ix.prom.ObserveSnapshot(err)
	}
	if err != nil {
		if errors.Is(err, sferrors.ErrCircuitOpen) {
			err = sferrors.New(sferrors.ErrCodeSnapshotFailed, "snapshot writes suspended after repeated failures", err)
		}
		return nil, err
	}
	ix.lastSnapshot.Store(time.Now().UnixNano())
	slog.Info("snapshot_saved",
		slog.String("path", ix.snapshots.Path()),
		slog.Int("documents", len(snap.Documents)),
		slog.Uint64("watermark", snap.Watermark))
	return snap, nil
}

// Restore replaces the index with the saved snapshot, rebuilding posting
// lists by normalizing every title again. Returns the number of
// documents restored; a missing snapshot restores nothing and is not an
// error.
func (ix *Indexer) Restore(ctx context.Context) (int, error) {
	if ix.snapshots == nil {
		return 0, nil
	}
	snap, err := ix.snapshots.Load(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := ix.load(snap); err != nil {
		return 0, err
	}
	slog.Info("snapshot_restored",
		slog.String("path", ix.snapshots.Path()),
		slog.Int("documents", len(snap.Documents)),
		slog.Int("fingerprints", len(snap.Fingerprints)))
	return len(snap.Documents), nil
}

func (ix *Indexer) load(snap *store.Snapshot) error {
	for _, doc := range snap.Documents {
		doc.TitleTokens = normalize.Tokenize(doc.Title)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.store.Reset(snap.Documents); err != nil {
		return sferrors.New(sferrors.ErrCodeSnapshotFailed, "rebuild index from snapshot", err)
	}
	ix.dedup.Restore(snap.Fingerprints, snap.Documents)
	return nil
}

// Rebuild recovers from index corruption by reloading the last snapshot.
// Writes are refused with TransientStore errors while it runs; readers keep
// serving the old state until the new one is swapped in.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	ix.store.Freeze()
	defer ix.store.Thaw()

	slog.Warn("index_rebuild_started")
	n, err := ix.Restore(ctx)
	if err != nil {
		slog.Error("index_rebuild_failed", sferrors.LogAttrs(err)...)
		return err
	}
	slog.Info("index_rebuild_done", slog.Int("documents", n))
	return nil
}

// CheckAndRepair verifies index invariants and rebuilds from the snapshot
// when they are violated. It returns the check result and, when a rebuild
// was needed, an IndexCorruption error wrapping any rebuild failure.
func (ix *Indexer) CheckAndRepair(ctx context.Context) (*CheckResult, error) {
	result, err := NewConsistencyChecker(ix.store, ix.dedup).Check(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Inconsistencies) == 0 {
		return result, nil
	}

	first := result.Inconsistencies[0]
	corruption := sferrors.IndexCorruption(first.Details).
		WithDetail("doc_id", first.DocID.String()).
		WithDetail("type", first.Type.String())
	slog.Error("index_corruption_detected",
		slog.Int("issues", len(result.Inconsistencies)),
		slog.String("first", first.Type.String()))

	if err := ix.Rebuild(ctx); err != nil {
		corruption.Cause = err
	}
	return result, corruption
}
