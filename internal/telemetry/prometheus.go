package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

const namespace = "shadowfinder"

// Prometheus exposes service counters on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	degraded      prometheus.Counter
	cacheHits     prometheus.Counter
	ingestEvents  *prometheus.CounterVec
	retries       prometheus.Counter
	snapshots     *prometheus.CounterVec
	compactions   prometheus.Counter
}

// NewPrometheus creates and registers the collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Searches served, by query kind.",
		}, []string{"kind"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Search latency.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_degraded_total",
			Help:      "Searches cut short by their deadline.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Searches answered from the result cache.",
		}),
		ingestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Ingested events, by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_retries_total",
			Help:      "Write retries after transient store errors.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot attempts, by result.",
		}, []string{"result"}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Tombstone compactions run.",
		}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.queries, p.queryDuration, p.degraded, p.cacheHits,
		p.ingestEvents, p.retries, p.snapshots, p.compactions,
	)
	return p
}

// RegisterIndexGauges exposes document and posting counts read from stats
// at scrape time.
func (p *Prometheus) RegisterIndexGauges(stats func() store.Stats) {
	gauge := func(name, help string, value func(store.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) })
	}
	p.registry.MustRegister(
		gauge("documents", "Documents in the index, tombstoned included.",
			func(s store.Stats) float64 { return float64(s.Documents) }),
		gauge("documents_live", "Documents visible to queries.",
			func(s store.Stats) float64 { return float64(s.Live) }),
		gauge("postings_dead", "Postings that reference tombstoned documents.",
			func(s store.Stats) float64 { return float64(s.DeadPostings) }),
	)
}

// ObserveQuery records one served search.
func (p *Prometheus) ObserveQuery(kind QueryKind, latency time.Duration, degraded, cacheHit bool) {
	p.queries.WithLabelValues(string(kind)).Inc()
	p.queryDuration.Observe(latency.Seconds())
	if degraded {
		p.degraded.Inc()
	}
	if cacheHit {
		p.cacheHits.Inc()
	}
}

// ObserveIngest records one event outcome (insert, merge, tombstone, ...).
func (p *Prometheus) ObserveIngest(outcome string) {
	p.ingestEvents.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one write retry.
func (p *Prometheus) ObserveRetry() {
	p.retries.Inc()
}

// ObserveSnapshot records a snapshot attempt.
func (p *Prometheus) ObserveSnapshot(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.snapshots.WithLabelValues(result).Inc()
}

// ObserveCompaction records a compaction run.
func (p *Prometheus) ObserveCompaction() {
	p.compactions.Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
