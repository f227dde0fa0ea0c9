package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/cache"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
)

// Config tunes query evaluation.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	// MinQueryLength is the shortest query text, in runes, that yields terms.
	MinQueryLength int
	MatchWeight    float64
	RecencyWeight  float64
	// Timeout bounds evaluation; 0 relies on the caller's context only.
	Timeout time.Duration
	// CacheTTL is the lifetime of cached pages.
	CacheTTL time.Duration
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		MinQueryLength:  1,
		MatchWeight:     1.0,
		RecencyWeight:   0.1,
		Timeout:         2 * time.Second,
		CacheTTL:        cache.DefaultTTL,
	}
}

// Index is the read side of the store.
type Index interface {
	View() *store.View
}

// Engine evaluates queries. It never mutates the index and is safe for
// concurrent use.
type Engine struct {
	index   Index
	config  Config
	cursors *cursorCodec
	cache   *cache.Cache[*Result]
	metrics *telemetry.QueryMetrics
	prom    *telemetry.Prometheus
}

// EngineOption configures the engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	cursorKey []byte
	cache     *cache.Cache[*Result]
	metrics   *telemetry.QueryMetrics
	prom      *telemetry.Prometheus
}

// WithCursorKey sets the HMAC key cursors are signed with. Without it a
// random key is generated and cursors do not survive a restart.
func WithCursorKey(key []byte) EngineOption {
	return func(o *engineOptions) {
		o.cursorKey = key
	}
}

// WithCache puts a result cache in front of evaluation.
func WithCache(c *cache.Cache[*Result]) EngineOption {
	return func(o *engineOptions) {
		o.cache = c
	}
}

// WithMetrics records query telemetry.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// WithPrometheus records query counters.
func WithPrometheus(p *telemetry.Prometheus) EngineOption {
	return func(o *engineOptions) {
		o.prom = p
	}
}

// NewEngine creates an engine reading from index.
func NewEngine(index Index, cfg Config, opts ...EngineOption) *Engine {
	def := DefaultConfig()
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(def.DefaultPageSize, cfg.MaxPageSize)
	}
	if cfg.MatchWeight == 0 && cfg.RecencyWeight == 0 {
		cfg.MatchWeight, cfg.RecencyWeight = def.MatchWeight, def.RecencyWeight
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		index:   index,
		config:  cfg,
		cursors: newCursorCodec(o.cursorKey),
		cache:   o.cache,
		metrics: o.metrics,
		prom:    o.prom,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Search evaluates q and returns one page.
//
// Errors are typed: InvalidQuery for bad filters, InvalidPageSize,
// QueryTooBroad for a query with nothing to match on, InvalidCursor for a
// cursor from another query or server. Running out of time is not an
// error: the partial page comes back with Degraded set.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	pageSize, err := e.pageSize(q.PageSize)
	if err != nil {
		return nil, err
	}
	plan, err := Parse(q.Text, e.config.MinQueryLength)
	if err != nil {
		return nil, err
	}
	plan.Filters = q.Filters.merge(plan.Filters)
	if plan.IsEmpty() {
		return nil, sferrors.QueryTooBroad()
	}

	shape := plan.shape()
	var after *position
	if q.Cursor != "" {
		pos, err := e.cursors.decode(shape, q.Cursor)
		if err != nil {
			return nil, err
		}
		after = &pos
	}

	var (
		key   string
		scope string
		epoch uint64
	)
	if e.cache != nil {
		key = plan.cacheKey(q.Cursor, pageSize)
		scope = plan.Filters.Channel
		if cached, ok := e.cache.Get(key); ok {
			res := cached.clone()
			res.Cached = true
			e.record(q.Text, plan, res, time.Since(start))
			return res, nil
		}
		epoch = e.cache.Epoch()
	}

	evalCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	res, err := e.evaluate(evalCtx, plan, shape, after, pageSize)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		slog.Warn("query_degraded",
			slog.String("error_code", sferrors.ErrCodeQueryTimeout),
			slog.Int("terms", len(plan.Terms)),
			slog.Int("examined", res.Total),
			slog.Duration("elapsed", time.Since(start)))
	} else if e.cache != nil {
		e.cache.Put(key, scope, res.clone(), e.config.CacheTTL, epoch)
	}

	e.record(q.Text, plan, res, time.Since(start))
	return res, nil
}

func (e *Engine) pageSize(n int) (int, error) {
	switch {
	case n == 0:
		return e.config.DefaultPageSize, nil
	case n < 0:
		return 0, sferrors.Newf(sferrors.ErrCodeInvalidPageSize, "page size must be positive, got %d", n)
	case n > e.config.MaxPageSize:
		return e.config.MaxPageSize, nil
	default:
		return n, nil
	}
}

// checkEvery is how many candidates are examined between deadline checks.
const checkEvery = 256

func (e *Engine) evaluate(ctx context.Context, plan Plan, shape string, after *position, pageSize int) (*Result, error) {
	view := e.index.View()
	filters := buildFilters(plan.Filters)
	best := newTopK(pageSize + 1)
	res := &Result{}

	examined := 0
	interrupted := func() bool {
		examined++
		if examined%checkEvery != 1 {
			return false
		}
		return ctx.Err() != nil
	}
	consider := func(id store.DocID, doc *store.Document, matches int) {
		if len(filters) > 0 && !matchesAllFilters(doc, view.Aliases(id), filters) {
			return
		}
		res.Total++
		score := float64(matches)*e.config.MatchWeight + doc.RecencyScore()*e.config.RecencyWeight
		if after != nil && !after.precedes(score, id) {
			return
		}
		best.offer(scored{doc: doc, score: score, matchCount: matches})
	}

	if len(plan.Terms) == 0 {
		view.ForEachLive(func(id store.DocID, doc *store.Document) bool {
			if interrupted() {
				res.Degraded = true
				return false
			}
			consider(id, doc, 0)
			return true
		})
	} else {
		driver, others := e.postings(view, plan.Terms)
		for _, p := range driver {
			if interrupted() {
				res.Degraded = true
				break
			}
			matches, ok := p.Frequency, true
			for _, other := range others {
				freq, found := other[p.DocID]
				if !found {
					ok = false
					break
				}
				matches += freq
			}
			if !ok {
				continue
			}
			doc, live := view.Peek(p.DocID)
			if !live {
				continue
			}
			consider(p.DocID, doc, matches)
		}
	}

	if res.Degraded && errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	ranked := best.sorted()
	if len(ranked) > pageSize {
		ranked = ranked[:pageSize]
		if !res.Degraded {
			last := ranked[pageSize-1]
			res.NextCursor = e.cursors.encode(shape, position{score: last.score, id: last.doc.ID})
		}
	}
	res.Hits = make([]Hit, len(ranked))
	for i, s := range ranked {
		res.Hits[i] = Hit{
			ID:         s.doc.ID,
			SourceRef:  s.doc.SourceRef,
			AliasRefs:  append([]store.SourceRef{}, view.Aliases(s.doc.ID)...),
			Title:      s.doc.Title,
			MediaKind:  s.doc.MediaKind,
			SizeBytes:  s.doc.SizeBytes,
			CreatedAt:  s.doc.CreatedAt,
			Score:      s.score,
			MatchCount: s.matchCount,
		}
	}
	return res, nil
}

// postings returns the shortest posting list to drive the intersection and
// a frequency map for every other term. A missing term yields no driver.
func (e *Engine) postings(view *store.View, terms []string) ([]store.Posting, []map[store.DocID]int) {
	lists := make([][]store.Posting, len(terms))
	for i, term := range terms {
		lists[i] = view.Lookup(term)
		if len(lists[i]) == 0 {
			return nil, nil
		}
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	others := make([]map[store.DocID]int, 0, len(lists)-1)
	for _, list := range lists[1:] {
		m := make(map[store.DocID]int, len(list))
		for _, p := range list {
			m[p.DocID] = p.Frequency
		}
		others = append(others, m)
	}
	return lists[0], others
}

func (e *Engine) record(text string, plan Plan, res *Result, latency time.Duration) {
	kind := telemetry.KindOf(len(plan.Terms), !plan.Filters.IsZero())
	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       text,
			Terms:       plan.Terms,
			Kind:        kind,
			ResultCount: len(res.Hits),
			Latency:     latency,
			Degraded:    res.Degraded,
			CacheHit:    res.Cached,
			Served:      res.IDs(),
		})
	}
	if e.prom != nil {
		e.prom.ObserveQuery(kind, latency, res.Degraded, res.Cached)
	}
	slog.Debug("query_served",
		slog.Int("terms", len(plan.Terms)),
		slog.Int("hits", len(res.Hits)),
		slog.Int("total", res.Total),
		slog.Bool("cached", res.Cached),
		slog.Bool("degraded", res.Degraded),
		slog.Duration("latency", latency))
}
