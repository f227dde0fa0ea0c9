package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anupammaurya6767/shadowfinder/internal/cache"
	"github.com/anupammaurya6767/shadowfinder/internal/config"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/index"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
	"github.com/anupammaurya6767/shadowfinder/internal/watcher"
	"github.com/anupammaurya6767/shadowfinder/pkg/version"
)

// Daemon owns one index and everything around it. It can serve requests
// on a socket (Start) or be driven in-process by the CLI (Open, then the
// Handler methods, then Close).
type Daemon struct {
	cfg  *config.Config
	sock Config

	lock       *store.DirLock
	pidFile    *PIDFile
	indexer    *index.Indexer
	cache      *cache.Cache[*search.Result]
	engine     *search.Engine
	orch       *ingest.Orchestrator
	queries    *telemetry.QueryMetrics
	metricsDB  *telemetry.SQLiteMetricsStore
	prom       *telemetry.Prometheus
	compaction *CompactionManager

	startTime time.Time

	mu         sync.Mutex
	opened     bool
	readOnly   bool
	lastIngest *ingest.Stats
}

// Option configures a Daemon.
type Option func(*options)

type options struct {
	progress    func(ingest.Stats)
	skipMetrics bool
}

// WithIngestProgress reports progress of in-process ingest runs.
func WithIngestProgress(fn func(ingest.Stats)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithoutQueryLog keeps query telemetry in memory instead of
// <data_dir>/metrics.db.
func WithoutQueryLog() Option {
	return func(o *options) {
		o.skipMetrics = true
	}
}

// SocketConfig derives the socket settings from the application config.
func SocketConfig(cfg *config.Config) Config {
	return Config{
		SocketPath: cfg.SocketPath(),
		PIDPath:    cfg.PIDPath(),
		Timeout:    cfg.Server.RequestTimeout,
	}.WithDefaults()
}

// NewDaemon assembles the index, cache, search engine and ingestion
// pipeline described by cfg. Nothing is locked or loaded until Open.
func NewDaemon(cfg *config.Config, opts ...Option) (*Daemon, error) {
	sock := SocketConfig(cfg)
	if err := sock.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		sock:      sock,
		lock:      store.NewDirLock(cfg.DataDir),
		pidFile:   NewPIDFile(sock.PIDPath),
		prom:      telemetry.NewPrometheus(),
		startTime: time.Now(),
	}

	var ms telemetry.MetricsStore
	if !o.skipMetrics {
		db, err := telemetry.OpenSQLiteMetricsStore(filepath.Join(cfg.DataDir, "metrics.db"), cfg.Snapshot.Driver)
		if err != nil {
			slog.Warn("query_log_unavailable", slog.String("error", err.Error()))
		} else {
			d.metricsDB = db
			ms = db
		}
	}
	d.queries = telemetry.NewQueryMetrics(ms)

	indexOpts := []index.Option{
		index.WithSnapshots(store.NewSnapshotStore(cfg.SnapshotPath(), cfg.Snapshot.Driver)),
		index.WithChannelFilter(cfg.ChannelAllowed),
		index.WithPrometheus(d.prom),
	}
	engineOpts := []search.EngineOption{
		search.WithMetrics(d.queries),
		search.WithPrometheus(d.prom),
	}
	if cfg.Search.CursorSecret != "" {
		engineOpts = append(engineOpts, search.WithCursorKey([]byte(cfg.Search.CursorSecret)))
	}
	if cfg.Cache.Enabled {
		d.cache = cache.New[*search.Result](cfg.Cache.Capacity, cfg.Cache.TTL)
		indexOpts = append(indexOpts, index.WithInvalidator(d.cache))
		engineOpts = append(engineOpts, search.WithCache(d.cache))
	}

	d.indexer = index.New(store.New(), indexOpts...)
	d.prom.RegisterIndexGauges(d.indexer.Stats)
	d.engine = search.NewEngine(d.indexer.Store(), searchConfig(cfg), engineOpts...)

	ingestOpts := []ingest.Option{ingest.WithPrometheus(d.prom)}
	if o.progress != nil {
		ingestOpts = append(ingestOpts, ingest.WithProgress(o.progress))
	}
	d.orch = ingest.New(d.indexer, ingestConfig(cfg), ingestOpts...)
	d.compaction = NewCompactionManager(d.indexer, cfg.Compaction)
	return d, nil
}

func searchConfig(cfg *config.Config) search.Config {
	return search.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		MinQueryLength:  cfg.Search.MinQueryLength,
		MatchWeight:     cfg.Search.MatchWeight,
		RecencyWeight:   cfg.Search.RecencyWeight,
		Timeout:         cfg.Search.Timeout,
		CacheTTL:        cfg.Cache.TTL,
	}
}

func ingestConfig(cfg *config.Config) ingest.Config {
	ic := ingest.DefaultConfig()
	ic.RatePerSecond = cfg.Ingest.RatePerSecond
	ic.Burst = cfg.Ingest.Burst
	ic.QueueSize = cfg.Ingest.QueueSize
	ic.Retry.MaxRetries = cfg.Ingest.MaxRetries
	if cfg.Ingest.RetryDelay > 0 {
		ic.Retry.InitialDelay = cfg.Ingest.RetryDelay
	}
	if cfg.Ingest.RetryMaxDelay > 0 {
		ic.Retry.MaxDelay = cfg.Ingest.RetryMaxDelay
	}
	return ic
}

// Open locks the data directory and restores the last snapshot, then
// verifies the restored index.
func (d *Daemon) Open(ctx context.Context) error {
	return d.open(ctx, false)
}

// OpenReadOnly restores the last snapshot without taking the lock. Close
// will not write a snapshot. Used to search while no server is running.
func (d *Daemon) OpenReadOnly(ctx context.Context) error {
	return d.open(ctx, true)
}

func (d *Daemon) open(ctx context.Context, readOnly bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil
	}
	if !readOnly {
		if err := d.lock.TryLock(); err != nil {
			return err
		}
	}

	n, err := d.indexer.Restore(ctx)
	if err != nil {
		if !readOnly {
			_ = d.lock.Unlock()
		}
		return err
	}
	if n > 0 && !readOnly {
		if _, err := d.indexer.CheckAndRepair(ctx); err != nil {
			slog.Warn("index_repaired", sferrors.LogAttrs(err)...)
		}
	}
	d.opened = true
	d.readOnly = readOnly
	slog.Info("index_opened",
		slog.String("data_dir", d.cfg.DataDir),
		slog.Int("documents", n),
		slog.Bool("read_only", readOnly))
	return nil
}

// Close saves a final snapshot (unless opened read-only), flushes query
// telemetry and releases the data directory.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return d.closeTelemetry()
	}
	d.opened = false
	d.compaction.Stop()

	var errs []error
	if !d.readOnly && d.indexer.LastWrite().After(d.indexer.LastSnapshot()) {
		ctx, cancel := context.WithTimeout(context.Background(), d.sock.ShutdownGracePeriod)
		if _, err := d.indexer.Snapshot(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
		cancel()
	}
	if err := d.closeTelemetry(); err != nil {
		errs = append(errs, err)
	}
	if !d.readOnly {
		if err := d.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) closeTelemetry() error {
	err := d.queries.Close()
	if d.metricsDB != nil {
		err = errors.Join(err, d.metricsDB.Close())
		d.metricsDB = nil
	}
	return err
}

// Start opens the index and serves until ctx is cancelled. Alongside the
// socket server it runs inbox ingestion, background compaction, periodic
// snapshots and, when configured, the metrics endpoint. It returns
// ctx.Err() after a clean shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.Open(ctx); err != nil {
		_ = d.Close()
		return err
	}
	if err := d.pidFile.Write(); err != nil {
		_ = d.Close()
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	slog.Info("daemon_started",
		slog.String("socket", d.sock.SocketPath),
		slog.Int("pid", os.Getpid()),
		slog.String("version", version.Short()))

	g, gctx := errgroup.WithContext(ctx)
	d.compaction.Start(gctx)
	server := NewServer(d.sock.SocketPath, d, d.sock.Timeout)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		runSnapshots(gctx, d.indexer, d.cfg.Snapshot.Interval)
		return nil
	})
	if inbox := d.cfg.Ingest.Inbox; inbox != "" {
		g.Go(func() error {
			return d.watchInbox(gctx, inbox)
		})
	}
	if addr := d.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return d.serveMetrics(gctx, addr)
		})
	}

	err := g.Wait()
	slog.Info("daemon_stopping", slog.String("reason", fmt.Sprint(err)))
	if closeErr := d.Close(); closeErr != nil {
		slog.Error("shutdown_failed", slog.String("error", closeErr.Error()))
		if err == nil || errors.Is(err, context.Canceled) {
			return closeErr
		}
	}
	return err
}

// watchInbox ingests event files dropped into dir until ctx is done.
func (d *Daemon) watchInbox(ctx context.Context, dir string) error {
	orch := ingest.New(d.indexer, ingestConfig(d.cfg),
		ingest.WithPrometheus(d.prom),
		ingest.WithProgress(func(s ingest.Stats) {
			d.recordIngest(s)
			d.compaction.OnActivity()
		}))
	stats, err := orch.Run(ctx, ingest.NewDirSource(dir, watcher.DefaultOptions()))
	d.recordIngest(stats)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *Daemon) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.prom.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics_listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

func (d *Daemon) recordIngest(s ingest.Stats) {
	d.mu.Lock()
	d.lastIngest = &s
	d.mu.Unlock()
}

// Search implements Handler.
func (d *Daemon) Search(ctx context.Context, params SearchParams) (*search.Result, error) {
	defer d.compaction.OnActivity()
	return d.engine.Search(ctx, params.SearchQuery())
}

// Ingest implements Handler. Paths are read by this process.
func (d *Daemon) Ingest(ctx context.Context, params IngestParams) (ingest.Stats, error) {
	if d.isReadOnly() {
		return ingest.Stats{}, sferrors.Newf(sferrors.ErrCodeInternal, "index is open read-only")
	}
	var src ingest.Source
	if len(params.Paths) > 0 {
		src = ingest.NewFileSource(params.Paths...)
	} else {
		events := make([][]byte, len(params.Events))
		for i, ev := range params.Events {
			events[i] = ev
		}
		src = ingest.NewRawSource("rpc", events)
	}
	return d.RunIngest(ctx, src)
}

// RunIngest drains src into the index.
func (d *Daemon) RunIngest(ctx context.Context, src ingest.Source) (ingest.Stats, error) {
	stats, err := d.orch.Run(ctx, src)
	d.recordIngest(stats)
	d.compaction.OnActivity()
	return stats, err
}

// Snapshot implements Handler.
func (d *Daemon) Snapshot(ctx context.Context) (SnapshotResult, error) {
	if d.isReadOnly() {
		return SnapshotResult{}, sferrors.Newf(sferrors.ErrCodeSnapshotFailed, "index is open read-only")
	}
	snap, err := d.indexer.Snapshot(ctx)
	if err != nil {
		return SnapshotResult{}, err
	}
	return SnapshotResult{
		Path:      d.cfg.SnapshotPath(),
		Documents: len(snap.Documents),
		Watermark: snap.Watermark,
	}, nil
}

// Compact implements Handler.
func (d *Daemon) Compact(ctx context.Context) (CompactResult, error) {
	if err := ctx.Err(); err != nil {
		return CompactResult{}, err
	}
	return CompactResult{Removed: d.compaction.CompactNow()}, nil
}

// Status implements Handler.
func (d *Daemon) Status() StatusResult {
	d.mu.Lock()
	last := d.lastIngest
	d.mu.Unlock()

	compactedAt, _ := d.compaction.LastCompaction()
	res := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Version:        version.Short(),
		Uptime:         time.Since(d.startTime).Round(time.Second).String(),
		Index:          d.indexer.Stats(),
		Fingerprints:   d.indexer.Fingerprints(),
		Watermark:      d.indexer.Store().Seq(),
		Queries:        d.queries.Snapshot(),
		LastIngest:     last,
		LastWrite:      d.indexer.LastWrite(),
		LastSnapshot:   d.indexer.LastSnapshot(),
		LastCompaction: compactedAt,
		SnapshotPath:   d.cfg.SnapshotPath(),
		Inbox:          d.cfg.Ingest.Inbox,
	}
	if d.cache != nil {
		res.Cache = d.cache.Stats()
	}
	return res
}

// Indexer exposes the write side for in-process callers.
func (d *Daemon) Indexer() *index.Indexer {
	return d.indexer
}

// Engine exposes the query engine for in-process callers.
func (d *Daemon) Engine() *search.Engine {
	return d.engine
}

// Queries exposes query telemetry.
func (d *Daemon) Queries() *telemetry.QueryMetrics {
	return d.queries
}

func (d *Daemon) isReadOnly() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readOnly
}
