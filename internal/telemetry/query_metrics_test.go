package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_Add_SingleItem(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")

	items := buf.Items()
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "query1", items[0])
}

func TestCircularBuffer_Add_MultipleItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")

	items := buf.Items()
	assert.Equal(t, 3, len(items))
	assert.Equal(t, []string{"query1", "query2", "query3"}, items)
}

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	// Add more items than capacity
	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // Should evict query1
	buf.Add("query5") // Should evict query2

	items := buf.Items()
	assert.Equal(t, 3, len(items))
	// Should contain last 3 items (FIFO eviction)
	assert.Equal(t, []string{"query3", "query4", "query5"}, items)
}

func TestCircularBuffer_Size(t *testing.T) {
	buf := NewCircularBuffer[string](5)

	assert.Equal(t, 0, buf.Size())

	buf.Add("a")
	assert.Equal(t, 1, buf.Size())

	buf.Add("b")
	buf.Add("c")
	assert.Equal(t, 3, buf.Size())

	// Exceed capacity
	buf.Add("d")
	buf.Add("e")
	buf.Add("f")                   // Evicts "a"
	assert.Equal(t, 5, buf.Size()) // Size capped at capacity
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Equal(t, 0, len(items))
	assert.NotNil(t, items) // Should return empty slice, not nil
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, len(buf.Items()))
}

// =============================================================================
// LatencyBucket Tests
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{25 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{75 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{250 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{1 * time.Second, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			got := LatencyToBucket(tt.latency)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// =============================================================================
// QueryMetrics Tests
// =============================================================================

func TestKindOf(t *testing.T) {
	assert.Equal(t, QueryKindTerms, KindOf(2, false))
	assert.Equal(t, QueryKindMixed, KindOf(1, true))
	assert.Equal(t, QueryKindFilters, KindOf(0, true))
}

func TestQueryMetrics_Record_IncrementsCounts(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "solo", Terms: []string{"solo"}, Kind: QueryKindTerms, ResultCount: 2})
	m.Record(QueryEvent{Query: "type:video", Kind: QueryKindFilters, ResultCount: 1, Degraded: true})
	m.Record(QueryEvent{Query: "solo", Terms: []string{"solo"}, Kind: QueryKindTerms, ResultCount: 2, CacheHit: true})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.KindCounts[QueryKindTerms])
	assert.Equal(t, int64(1), snap.KindCounts[QueryKindFilters])
	assert.Equal(t, int64(1), snap.DegradedCount)
	assert.Equal(t, int64(1), snap.CacheHitCount)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
}

func TestQueryMetrics_TopTermsSortedByCount(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "a", Terms: []string{"leveling", "solo"}, ResultCount: 1})
	m.Record(QueryEvent{Query: "b", Terms: []string{"leveling"}, ResultCount: 1})

	terms := m.Snapshot().TopTerms
	require.Len(t, terms, 2)
	assert.Equal(t, TermCount{Term: "leveling", Count: 2}, terms[0])
	assert.Equal(t, TermCount{Term: "solo", Count: 1}, terms[1])
}

func TestQueryMetrics_TopDocuments(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "a", Served: []store.DocID{1, 2}, ResultCount: 2})
	m.Record(QueryEvent{Query: "b", Served: []store.DocID{2}, ResultCount: 1})

	top := m.TopDocuments(1)
	require.Len(t, top, 1)
	assert.Equal(t, DocCount{ID: 2, Count: 2}, top[0])
}

func TestQueryMetrics_ZeroResults(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{ZeroResultsCapacity: 2})
	defer m.Close()

	m.Record(QueryEvent{Query: "q1"})
	m.Record(QueryEvent{Query: "q2"})
	m.Record(QueryEvent{Query: "q3"})
	m.Record(QueryEvent{Query: "hit", ResultCount: 1})

	snap := m.Snapshot()
	assert.Equal(t, []string{"q2", "q3"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(3), snap.ZeroResultCount)
	assert.InDelta(t, 75.0, snap.ZeroResultPercentage(), 1e-9)
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(QueryEvent{Query: "q", Terms: []string{"q"}, ResultCount: 1, Latency: time.Millisecond})
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
	assert.Equal(t, int64(1000), m.Snapshot().LatencyDistribution[BucketP10])
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late"})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_FlushWritesDeltas(t *testing.T) {
	// Given a collector backed by SQLite
	ms := openTestStore(t)
	m := NewQueryMetricsWithConfig(ms, QueryMetricsConfig{FlushInterval: 0})

	// When flushing twice with one query in between each
	m.Record(QueryEvent{Query: "solo", Terms: []string{"solo"}, Kind: QueryKindTerms})
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "solo", Terms: []string{"solo"}, Kind: QueryKindTerms, ResultCount: 1})
	require.NoError(t, m.Close())

	// Then persisted counts equal recorded counts, not a running sum of sums
	terms, err := ms.GetTopTerms(10)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "solo", Count: 2}}, terms)

	today := time.Now().Format("2006-01-02")
	kinds, err := ms.GetKindCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), kinds[QueryKindTerms])

	zero, err := ms.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, zero)
}
