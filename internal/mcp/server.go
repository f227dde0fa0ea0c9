// Package mcp exposes search and index statistics to AI assistants over
// the Model Context Protocol.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
	"github.com/anupammaurya6767/shadowfinder/pkg/version"
)

// Backend answers the queries the server exposes. *daemon.Client
// satisfies it directly; LocalBackend wraps an in-process daemon.
type Backend interface {
	Search(ctx context.Context, params daemon.SearchParams) (*search.Result, error)
	Status(ctx context.Context) (*daemon.StatusResult, error)
}

// LocalBackend serves from a daemon opened in this process.
type LocalBackend struct {
	Daemon *daemon.Daemon
}

// Search implements Backend.
func (b LocalBackend) Search(ctx context.Context, params daemon.SearchParams) (*search.Result, error) {
	return b.Daemon.Search(ctx, params)
}

// Status implements Backend.
func (b LocalBackend) Status(_ context.Context) (*daemon.StatusResult, error) {
	st := b.Daemon.Status()
	return &st, nil
}

// Server is the MCP server.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Search indexed channel content by title. All terms must match. Supports channel, media kind and date filters, and pages through results with a cursor.",
	},
	{
		Name:        "index_status",
		Description: "Report index size, tombstones, last snapshot and the last ingest run.",
	},
	{
		Name:        "query_stats",
		Description: "Report popular search terms, the documents served most often, and queries that found nothing.",
	},
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Server{
		backend: backend,
		logger:  slog.Default(),
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "shadowfinder",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpQueryStatsHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, text, err := s.handleSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

// handleSearch validates input, runs the query, and returns both the
// structured page and its markdown rendering.
func (s *Server) handleSearch(ctx context.Context, input SearchInput) (SearchOutput, string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" && input.Channel == "" && input.MediaKind == "" &&
		input.Before == "" && input.After == "" {
		return SearchOutput{}, "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	params, err := input.params()
	if err != nil {
		return SearchOutput{}, "", err
	}

	res, err := s.backend.Search(ctx, params)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchOutput{}, "", MapError(err)
	}
	s.logger.Info("mcp_search",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(res.Hits)))

	out := SearchOutput{
		Results:    toHitOutputs(res.Hits),
		Total:      res.Total,
		NextCursor: res.NextCursor,
		Degraded:   res.Degraded,
	}
	return out, FormatSearchResults(input.Query, res), nil
}

func (in SearchInput) params() (daemon.SearchParams, error) {
	p := daemon.SearchParams{
		Query:     in.Query,
		Channel:   in.Channel,
		MediaKind: store.MediaKind(strings.ToLower(in.MediaKind)),
		Cursor:    in.Cursor,
		PageSize:  in.PageSize,
	}
	if p.PageSize < 0 {
		return p, NewInvalidParamsError("page_size must be positive")
	}
	var err error
	if p.Before, err = parseTime("before", in.Before); err != nil {
		return p, err
	}
	if p.After, err = parseTime("after", in.After); err != nil {
		return p, err
	}
	return p, nil
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewInvalidParamsError(fmt.Sprintf("%s must be an RFC 3339 time or YYYY-MM-DD date, got %q", field, v))
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &IndexStatusOutput{
		Running:   st.Running,
		Version:   st.Version,
		Index:     st.Index,
		Watermark: st.Watermark,
	}
	if !st.LastSnapshot.IsZero() {
		out.LastSnapshot = st.LastSnapshot.UTC().Format(time.RFC3339)
	}
	if li := st.LastIngest; li != nil {
		out.LastIngest = &IngestOutput{
			Source:    li.Source,
			Status:    string(li.Status),
			Processed: li.Processed(),
			Inserted:  li.Inserted,
			Merged:    li.Merged,
			Rejected:  li.Malformed + li.Failed,
			Error:     li.Error,
		}
	}
	return out, nil
}

func (s *Server) mcpQueryStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, input QueryStatsInput) (
	*mcp.CallToolResult,
	*QueryStatsOutput,
	error,
) {
	out, err := s.handleQueryStats(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) handleQueryStats(ctx context.Context, input QueryStatsInput) (*QueryStatsOutput, error) {
	limit := clampLimit(input.Limit, 10, 1, 100)
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &QueryStatsOutput{
		TopTerms:          []TermOutput{},
		PopularDocuments:  []PopularDoc{},
		ZeroResultQueries: []string{},
		KindCounts:        map[string]int64{},
	}
	q := st.Queries
	if q == nil {
		return out, nil
	}
	out.TotalQueries = q.TotalQueries
	out.ZeroResultPct = q.ZeroResultPercentage()
	for _, t := range q.TopTerms[:min(limit, len(q.TopTerms))] {
		out.TopTerms = append(out.TopTerms, TermOutput{Term: t.Term, Count: t.Count})
	}
	for _, d := range q.TopDocuments[:min(limit, len(q.TopDocuments))] {
		out.PopularDocuments = append(out.PopularDocuments, PopularDoc{ID: uint64(d.ID), Count: d.Count})
	}
	out.ZeroResultQueries = append(out.ZeroResultQueries, q.ZeroResultQueries[:min(limit, len(q.ZeroResultQueries))]...)
	for k, n := range q.KindCounts {
		out.KindCounts[string(k)] = n
	}
	return out, nil
}

// Serve runs the server over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// clampLimit returns def for v <= 0 and otherwise v bounded to [lo, hi].
func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	return max(lo, min(v, hi))
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
