package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/cache"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/internal/telemetry"
)

// JSON-RPC 2.0 method names.
const (
	MethodSearch   = "search"
	MethodIngest   = "ingest"
	MethodStatus   = "status"
	MethodPing     = "ping"
	MethodSnapshot = "snapshot"
	MethodCompact  = "compact"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Server-defined error codes. The FinderError code, when there is one, is
// carried in Error.Data.
const (
	ErrCodeQueryRejected  = -32001
	ErrCodeSearchFailed   = -32002
	ErrCodeIngestFailed   = -32003
	ErrCodeSnapshotFailed = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements error.
func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Data)
	}
	return e.Message
}

// FinderError converts the error back into the typed error it came from,
// so callers can match on sentinels across the socket.
func (e *Error) FinderError() error {
	if e.Data == "" {
		return e
	}
	return sferrors.New(e.Data, e.Message, nil)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, fmt.Sprintf("encode result: %v", err))
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// errorResponse maps a handler error to a response, keeping its code.
func errorResponse(id string, fallback int, err error) Response {
	code := fallback
	switch sferrors.GetCategory(err) {
	case sferrors.CategoryQuery:
		code = ErrCodeQueryRejected
	case sferrors.CategoryIngest:
		code = ErrCodeInvalidParams
	}
	resp := NewErrorResponse(id, code, err.Error())
	var fe *sferrors.FinderError
	if errors.As(err, &fe) {
		resp.Error.Message = fe.Message
		resp.Error.Data = fe.Code
	}
	return resp
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Query holds terms and inline filters such as "type:video".
	Query     string          `json:"query"`
	Channel   string          `json:"channel,omitempty"`
	MediaKind store.MediaKind `json:"media_kind,omitempty"`
	Before    time.Time       `json:"before,omitempty"`
	After     time.Time       `json:"after,omitempty"`
	Cursor    string          `json:"cursor,omitempty"`
	PageSize  int             `json:"page_size,omitempty"`
}

// SearchQuery converts the params to an engine query.
func (p SearchParams) SearchQuery() search.Query {
	return search.Query{
		Text: p.Query,
		Filters: search.Filters{
			Channel:   p.Channel,
			MediaKind: p.MediaKind,
			Before:    p.Before,
			After:     p.After,
		},
		Cursor:   p.Cursor,
		PageSize: p.PageSize,
	}
}

// IngestParams carry events inline, one JSON object per element, or paths
// of JSONL files readable by the server.
type IngestParams struct {
	Events []json.RawMessage `json:"events,omitempty"`
	Paths  []string          `json:"paths,omitempty"`
}

// Validate checks that exactly one input is given.
func (p IngestParams) Validate() error {
	switch {
	case len(p.Events) == 0 && len(p.Paths) == 0:
		return fmt.Errorf("events or paths is required")
	case len(p.Events) > 0 && len(p.Paths) > 0:
		return fmt.Errorf("events and paths are mutually exclusive")
	}
	return nil
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running        bool                            `json:"running"`
	PID            int                             `json:"pid"`
	Version        string                          `json:"version"`
	Uptime         string                          `json:"uptime"`
	Index          store.Stats                     `json:"index"`
	Fingerprints   int                             `json:"fingerprints"`
	Watermark      uint64                          `json:"watermark"`
	Cache          cache.Stats                     `json:"cache"`
	Queries        *telemetry.QueryMetricsSnapshot `json:"queries,omitempty"`
	LastIngest     *ingest.Stats                   `json:"last_ingest,omitempty"`
	LastWrite      time.Time                       `json:"last_write,omitempty"`
	LastSnapshot   time.Time                       `json:"last_snapshot,omitempty"`
	LastCompaction time.Time                       `json:"last_compaction,omitempty"`
	SnapshotPath   string                          `json:"snapshot_path"`
	Inbox          string                          `json:"inbox,omitempty"`
}

// SnapshotResult is the response to a snapshot request.
type SnapshotResult struct {
	Path      string `json:"path"`
	Documents int    `json:"documents"`
	Watermark uint64 `json:"watermark"`
}

// CompactResult is the response to a compact request.
type CompactResult struct {
	Removed int `json:"removed"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
