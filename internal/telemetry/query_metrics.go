// Package telemetry collects query telemetry: query shapes, latency,
// top terms, zero-result queries and the documents served most often.
// All data stays local.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// QueryKind classifies a search by what it constrains.
type QueryKind string

const (
	QueryKindTerms   QueryKind = "terms"   // search terms only
	QueryKindFilters QueryKind = "filters" // filters only
	QueryKindMixed   QueryKind = "mixed"   // terms and filters
)

// KindOf classifies a query from its parsed parts.
func KindOf(terms int, filtered bool) QueryKind {
	switch {
	case terms > 0 && filtered:
		return QueryKindMixed
	case terms > 0:
		return QueryKindTerms
	default:
		return QueryKindFilters
	}
}

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one served search.
type QueryEvent struct {
	Query       string
	Terms       []string
	Kind        QueryKind
	ResultCount int
	Latency     time.Duration
	Degraded    bool
	CacheHit    bool
	// Served lists the documents on the returned page.
	Served    []store.DocID
	Timestamp time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// DocCount is a document and how often it was served.
type DocCount struct {
	ID    store.DocID `json:"id"`
	Count int64       `json:"count"`
}

// QueryMetricsSnapshot is an immutable snapshot of query metrics.
type QueryMetricsSnapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	TopDocuments        []DocCount              `json:"top_documents"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	CacheHitCount       int64                   `json:"cache_hit_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryMetricsConfig configures the query metrics collector.
type QueryMetricsConfig struct {
	TopTermsCapacity      int           // max terms tracked (default: 100)
	TopDocumentsCapacity  int           // max documents tracked (default: 1000)
	ZeroResultsCapacity   int           // max zero-result queries kept (default: 100)
	RecentQueriesCapacity int           // max queries tracked for repetition (default: 500)
	FlushInterval         time.Duration // 0 disables auto-flush
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:      100,
		TopDocumentsCapacity:  1000,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
// Served-document counts are reported only; ranking never reads them.
type QueryMetrics struct {
	mu sync.RWMutex

	kinds            map[QueryKind]int64
	topTerms         *lru.Cache[string, int64]
	topDocs          *lru.Cache[store.DocID, int64]
	zeroResults      *CircularBuffer[string]
	latencies        map[LatencyBucket]int64
	recentQueries    *lru.Cache[string, struct{}]
	totalQueries     int64
	zeroResultCount  int64
	degradedCount    int64
	cacheHitCount    int64
	exactRepeatCount int64
	startTime        time.Time

	// Deltas since the last flush.
	pendingKinds     map[QueryKind]int64
	pendingTerms     map[string]int64
	pendingLatencies map[LatencyBucket]int64
	pendingZero      []zeroResult

	store       MetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

type zeroResult struct {
	query string
	at    time.Time
}

// NewQueryMetrics creates a collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store MetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with custom configuration.
func NewQueryMetricsWithConfig(ms MetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.TopDocumentsCapacity <= 0 {
		cfg.TopDocumentsCapacity = 1000
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	topDocs, _ := lru.New[store.DocID, int64](cfg.TopDocumentsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		topDocs:       topDocs,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recentQueries,
		startTime:     time.Now(),
		store:         ms,
		config:        cfg,
		stopCh:        make(chan struct{}),
	}
	m.resetPendingLocked()

	if cfg.FlushInterval > 0 && ms != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) resetPendingLocked() {
	m.pendingKinds = make(map[QueryKind]int64)
	m.pendingTerms = make(map[string]int64)
	m.pendingLatencies = make(map[LatencyBucket]int64)
	m.pendingZero = nil
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one served search.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.kinds[event.Kind]++
	m.pendingKinds[event.Kind]++
	m.totalQueries++

	for _, term := range event.Terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pendingTerms[term]++
	}
	for _, id := range event.Served {
		count, _ := m.topDocs.Get(id)
		m.topDocs.Add(id, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
		m.pendingZero = append(m.pendingZero, zeroResult{query: event.Query, at: event.Timestamp})
	}
	if event.Degraded {
		m.degradedCount++
	}
	if event.CacheHit {
		m.cacheHitCount++
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pendingLatencies[bucket]++

	queryHash := hashQuery(event.Query)
	if _, exists := m.recentQueries.Get(queryHash); exists {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(queryHash, struct{}{})
}

// hashQuery creates a normalized hash of the query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds := make(map[QueryKind]int64, len(m.kinds))
	for k, v := range m.kinds {
		kinds[k] = v
	}

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	topDocs := make([]DocCount, 0, m.topDocs.Len())
	for _, key := range m.topDocs.Keys() {
		if count, ok := m.topDocs.Peek(key); ok {
			topDocs = append(topDocs, DocCount{ID: key, Count: count})
		}
	}
	sort.SliceStable(topDocs, func(i, j int) bool {
		if topDocs[i].Count != topDocs[j].Count {
			return topDocs[i].Count > topDocs[j].Count
		}
		return topDocs[i].ID < topDocs[j].ID
	})

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &QueryMetricsSnapshot{
		KindCounts:          kinds,
		TopTerms:            topTerms,
		TopDocuments:        topDocs,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		DegradedCount:       m.degradedCount,
		CacheHitCount:       m.cacheHitCount,
		ExactRepeatCount:    m.exactRepeatCount,
		Since:               m.startTime,
	}
}

// TopDocuments returns the n most served documents.
func (m *QueryMetrics) TopDocuments(n int) []DocCount {
	docs := m.Snapshot().TopDocuments
	if n > 0 && len(docs) > n {
		docs = docs[:n]
	}
	return docs
}

// Flush persists counts accumulated since the last flush.
// Safe to call even if no store is configured.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	kinds, terms, latencies, zero := m.pendingKinds, m.pendingTerms, m.pendingLatencies, m.pendingZero
	m.resetPendingLocked()
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if err := m.store.SaveKindCounts(today, kinds); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, latencies); err != nil {
		return err
	}
	for _, z := range zero {
		if err := m.store.AddZeroResultQuery(z.query, z.at); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the flush loop and flushes once more.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
