// Package ingest moves content events from sources into the index: a
// reader goroutine fills a bounded queue and a single writer drains it
// through a token bucket, absorbing per-event failures.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anupammaurya6767/shadowfinder/internal/dedup"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/index"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
)

// Applier applies one event to the index. *index.Indexer implements it.
type Applier interface {
	Apply(ev normalize.Event) (index.Outcome, error)
}

// Config configures an Orchestrator.
type Config struct {
	RatePerSecond float64
	Burst         int
	QueueSize     int
	Retry         sferrors.RetryConfig
}

// DefaultConfig returns the defaults used when config values are zero.
func DefaultConfig() Config {
	retry := sferrors.DefaultRetryConfig()
	return Config{
		RatePerSecond: 200,
		Burst:         50,
		QueueSize:     256,
		Retry:         retry,
	}
}

// Orchestrator runs ingestion. Runs may overlap; the Applier serializes
// the actual writes.
type Orchestrator struct {
	applier    Applier
	cfg        Config
	limiter    *RateLimiter
	prom       *telemetry.Prometheus
	onProgress func(Stats)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrometheus counts event outcomes and retries.
func WithPrometheus(p *telemetry.Prometheus) Option {
	return func(o *Orchestrator) {
		o.prom = p
	}
}

// WithProgress calls fn with a stats snapshot after every event.
// fn runs on the writer goroutine and must not block.
func WithProgress(fn func(Stats)) Option {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// New creates an orchestrator writing through applier.
func New(applier Applier, cfg Config, opts ...Option) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = sferrors.IsRetryable
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2
	}
	o := &Orchestrator{
		applier: applier,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drains src into the index and returns the run's stats. Individual
// events never fail the run: malformed events and writes that keep failing
// after retries are counted and skipped. Run returns an error only when
// the source fails or ctx is done; stats are valid in both cases. Records
// queued before a source failure are still applied.
func (o *Orchestrator) Run(ctx context.Context, src Source) (Stats, error) {
	queue := make(chan Record, o.cfg.QueueSize)
	progress := newProgress(uuid.NewString(), src.Name(), func() int { return len(queue) })
	logger := slog.With(slog.String("run_id", progress.stats.RunID), slog.String("source", src.Name()))
	logger.Info("ingest_started", slog.Int("queue_size", o.cfg.QueueSize))

	// The reader stops with the writer, but the writer outlives a failed
	// reader so that records already queued are still applied.
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	var g errgroup.Group
	g.Go(func() error {
		defer close(queue)
		return src.Stream(readCtx, queue)
	})
	g.Go(func() error {
		for rec := range queue {
			if err := o.limiter.Wait(ctx); err != nil {
				stopReading()
				return err
			}
			o.handle(ctx, logger, progress, rec)
			if o.onProgress != nil {
				o.onProgress(progress.Snapshot())
			}
		}
		return nil
	})

	err := g.Wait()
	progress.finish(err)
	stats := progress.Snapshot()

	attrs := []any{
		slog.Int("received", stats.Received),
		slog.Int("inserted", stats.Inserted),
		slog.Int("merged", stats.Merged),
		slog.Int("tombstoned", stats.Tombstoned),
		slog.Int("ignored", stats.Ignored),
		slog.Int("malformed", stats.Malformed),
		slog.Int("failed", stats.Failed),
		slog.Int("retries", stats.Retries),
		slog.Duration("elapsed", stats.Elapsed),
	}
	if err != nil {
		logger.Warn("ingest_stopped", append(attrs, slog.String("error", err.Error()))...)
		return stats, err
	}
	logger.Info("ingest_done", attrs...)
	return stats, nil
}

func (o *Orchestrator) handle(ctx context.Context, logger *slog.Logger, p *Progress, rec Record) {
	p.update(func(s *Stats) { s.Received++ })

	if rec.Err != nil {
		o.skip(logger, p, rec, rec.Err)
		return
	}

	retry := o.cfg.Retry
	retry.OnRetry = func(attempt int, err error) {
		p.update(func(s *Stats) { s.Retries++ })
		if o.prom != nil {
			o.prom.ObserveRetry()
		}
		logger.Debug("ingest_retry",
			slog.String("origin", rec.Origin),
			slog.Int("attempt", attempt),
			slog.String("code", sferrors.GetCode(err)))
	}
	out, err := sferrors.RetryWithResult(ctx, retry, func() (index.Outcome, error) {
		return o.applier.Apply(rec.Event)
	})
	if err != nil {
		o.skip(logger, p, rec, err)
		return
	}

	outcome := out.Action.String()
	p.update(func(s *Stats) {
		switch out.Action {
		case dedup.ActionInsert:
			s.Inserted++
		case dedup.ActionMerge:
			s.Merged++
		case dedup.ActionTombstone:
			s.Tombstoned++
		default:
			s.Ignored++
		}
	})
	if o.prom != nil {
		o.prom.ObserveIngest(outcome)
	}
}

// skip counts an event that could not be applied.
func (o *Orchestrator) skip(logger *slog.Logger, p *Progress, rec Record, err error) {
	malformed := isMalformed(err)
	outcome := "failed"
	if malformed {
		outcome = "malformed"
	}
	p.update(func(s *Stats) {
		if malformed {
			s.Malformed++
		} else {
			s.Failed++
		}
	})
	if o.prom != nil {
		o.prom.ObserveIngest(outcome)
	}
	logger.Warn("ingest_event_skipped",
		append([]any{slog.String("origin", rec.Origin), slog.String("outcome", outcome)},
			sferrors.LogAttrs(err)...)...)
}

func isMalformed(err error) bool {
	switch sferrors.GetCode(err) {
	case sferrors.ErrCodeMalformedInput, sferrors.ErrCodeEventDecode:
		return true
	}
	return false
}

// RunTimeout is Run bounded by a timeout. A zero timeout means none.
func (o *Orchestrator) RunTimeout(ctx context.Context, src Source, timeout time.Duration) (Stats, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.Run(ctx, src)
}
