// Package search evaluates ranked, paginated queries against the index.
//
// A query is a list of terms, all of which must appear in a title, plus
// optional filters. Results are ranked by
//
//	score = match_count*MatchWeight + recency*RecencyWeight
//
// with ties broken by document id ascending. Pages are resumed with an
// opaque cursor that is only valid for the query that produced it.
package search

import (
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Query is one search request.
type Query struct {
	// Text holds search terms and inline key:value filters.
	Text    string  `json:"text"`
	Filters Filters `json:"filters"`
	// Cursor resumes a previous page. Empty starts from the top.
	Cursor string `json:"cursor,omitempty"`
	// PageSize is 1..MaxPageSize; 0 means the configured default.
	PageSize int `json:"page_size,omitempty"`
}

// Filters restrict the candidate set. Zero values do not filter.
type Filters struct {
	Channel   string          `json:"channel,omitempty"`
	MediaKind store.MediaKind `json:"media_kind,omitempty"`
	// Before and After are exclusive bounds on CreatedAt.
	Before time.Time `json:"before,omitempty"`
	After  time.Time `json:"after,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Channel == "" && f.MediaKind == "" && f.Before.IsZero() && f.After.IsZero()
}

// merge returns f with every unset field taken from inline.
func (f Filters) merge(inline Filters) Filters {
	if f.Channel == "" {
		f.Channel = inline.Channel
	}
	if f.MediaKind == "" {
		f.MediaKind = inline.MediaKind
	}
	if f.Before.IsZero() {
		f.Before = inline.Before
	}
	if f.After.IsZero() {
		f.After = inline.After
	}
	return f
}

// Hit is one document on a result page. It is a copy; the index is never
// exposed to callers.
type Hit struct {
	ID         store.DocID       `json:"id"`
	SourceRef  store.SourceRef   `json:"source_ref"`
	AliasRefs  []store.SourceRef `json:"alias_refs"`
	Title      string            `json:"title"`
	MediaKind  store.MediaKind   `json:"media_kind"`
	SizeBytes  int64             `json:"size_bytes"`
	CreatedAt  time.Time         `json:"created_at"`
	Score      float64           `json:"score"`
	MatchCount int               `json:"match_count"`
}

// Result is one page of ranked hits.
type Result struct {
	Hits []Hit `json:"documents"`
	// NextCursor is empty on the last page and on degraded pages.
	NextCursor string `json:"next_cursor,omitempty"`
	// Degraded is set when the deadline cut evaluation short. The page is
	// the best ranked among the documents examined so far. It carries no
	// cursor: resuming from a partial ranking could skip documents that
	// were never examined.
	Degraded bool `json:"degraded"`
	// Total counts matching documents, ignoring the cursor. It is a lower
	// bound when Degraded is set.
	Total int `json:"total"`
	// Cached is set when the page came from the result cache.
	Cached bool `json:"cached,omitempty"`
}

// clone copies r deeply enough that callers cannot reach a cached page.
func (r *Result) clone() *Result {
	out := *r
	out.Hits = make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		h.AliasRefs = append([]store.SourceRef(nil), h.AliasRefs...)
		out.Hits[i] = h
	}
	return &out
}

// IDs returns the document ids on the page in order.
func (r *Result) IDs() []store.DocID {
	ids := make([]store.DocID, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}
