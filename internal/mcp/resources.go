package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	StatusURI       = "shadowfinder://status"
	QueryMetricsURI = "shadowfinder://query_metrics"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "status",
		URI:         StatusURI,
		Description: "Server and index status",
		MIMEType:    "application/json",
	}, s.jsonResource(StatusURI, func(ctx context.Context) (any, error) {
		return s.backend.Status(ctx)
	}))

	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         QueryMetricsURI,
		Description: "Query pattern telemetry: top terms, popular documents, zero-result queries",
		MIMEType:    "application/json",
	}, s.jsonResource(QueryMetricsURI, func(ctx context.Context) (any, error) {
		return s.handleQueryStats(ctx, QueryStatsInput{Limit: 50})
	}))
}

// jsonResource serves the value returned by load as indented JSON.
func (s *Server) jsonResource(uri string, load func(context.Context) (any, error)) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		content, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			}},
		}, nil
	}
}
