package mcp

import (
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"search terms; inline filters such as channel:name or type:video are allowed"`
	Channel   string `json:"channel,omitempty" jsonschema:"only documents posted in this channel"`
	MediaKind string `json:"media_kind,omitempty" jsonschema:"one of text, image, video, audio, file, other"`
	Before    string `json:"before,omitempty" jsonschema:"only documents created before this RFC 3339 time or YYYY-MM-DD date"`
	After     string `json:"after,omitempty" jsonschema:"only documents created after this RFC 3339 time or YYYY-MM-DD date"`
	Cursor    string `json:"cursor,omitempty" jsonschema:"next_cursor from a previous page of the same query"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"results per page, default 20"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results    []HitOutput `json:"results" jsonschema:"ranked documents, best first"`
	Total      int         `json:"total" jsonschema:"number of matching documents"`
	NextCursor string      `json:"next_cursor,omitempty" jsonschema:"pass back as cursor to fetch the next page"`
	Degraded   bool        `json:"degraded,omitempty" jsonschema:"true when the query timed out and the page is partial"`
}

// HitOutput is one document in SearchOutput.
type HitOutput struct {
	ID        uint64   `json:"id"`
	Title     string   `json:"title"`
	Source    string   `json:"source" jsonschema:"channel/item where the document was first seen"`
	AlsoAt    []string `json:"also_at,omitempty" jsonschema:"other channel/item locations of the same content"`
	MediaKind string   `json:"media_kind"`
	SizeBytes int64    `json:"size_bytes,omitempty"`
	CreatedAt string   `json:"created_at,omitempty" jsonschema:"RFC 3339 creation time"`
	Score     float64  `json:"score"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Running      bool          `json:"running" jsonschema:"true when served by a running server"`
	Version      string        `json:"version"`
	Index        store.Stats   `json:"index"`
	Watermark    uint64        `json:"watermark" jsonschema:"sequence number of the last applied write"`
	LastSnapshot string        `json:"last_snapshot,omitempty"`
	LastIngest   *IngestOutput `json:"last_ingest,omitempty"`
}

// IngestOutput summarizes the last ingest run.
type IngestOutput struct {
	Source    string `json:"source"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Inserted  int    `json:"inserted"`
	Merged    int    `json:"merged"`
	Rejected  int    `json:"rejected"`
	Error     string `json:"error,omitempty"`
}

// QueryStatsInput defines the input schema for the query_stats tool.
type QueryStatsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries per list, default 10"`
}

// QueryStatsOutput reports what users search for and what they get.
type QueryStatsOutput struct {
	TotalQueries      int64            `json:"total_queries"`
	ZeroResultPct     float64          `json:"zero_result_pct"`
	TopTerms          []TermOutput     `json:"top_terms"`
	PopularDocuments  []PopularDoc     `json:"popular_documents" jsonschema:"documents served most often"`
	ZeroResultQueries []string         `json:"zero_result_queries"`
	KindCounts        map[string]int64 `json:"kind_counts"`
}

// TermOutput is a search term and how often it was used.
type TermOutput struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// PopularDoc is a document id and how often it was served.
type PopularDoc struct {
	ID    uint64 `json:"id"`
	Count int64  `json:"count"`
}

func toHitOutputs(hits []search.Hit) []HitOutput {
	out := make([]HitOutput, len(hits))
	for i, h := range hits {
		out[i] = HitOutput{
			ID:        uint64(h.ID),
			Title:     h.Title,
			Source:    h.SourceRef.String(),
			MediaKind: string(h.MediaKind),
			SizeBytes: h.SizeBytes,
			Score:     h.Score,
		}
		if !h.CreatedAt.IsZero() {
			out[i].CreatedAt = h.CreatedAt.UTC().Format(time.RFC3339)
		}
		for _, a := range h.AliasRefs {
			out[i].AlsoAt = append(out[i].AlsoAt, a.String())
		}
	}
	return out
}
