package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/switchyard-ai/switchyard/internal/domain/usage"
)

// projectionDays is the horizon the projection resource reports. Tools can
// ask for any horizon; the resource is a fixed monthly outlook.
const projectionDays = 30

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"switchyard://providers",
			"Provider Fleet",
			mcplib.WithResourceDescription("Supported providers with configuration, health, and circuit state"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProvidersResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"switchyard://usage/summary",
			"Usage Summary",
			mcplib.WithResourceDescription("Per-provider usage totals and the grand summary"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleUsageSummaryResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"switchyard://usage/projection",
			"Monthly Spend Projection",
			mcplib.WithResourceDescription("Spend extrapolated over the next 30 days from the observed run rate"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjectionResource,
	)
}

func (s *Server) handleProvidersResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Providers == nil {
		return errorContents(req.Params.URI, "provider lister not configured"), nil
	}
	return jsonContents(req.Params.URI, s.deps.Providers.Statuses(ctx))
}

func (s *Server) handleUsageSummaryResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Stats == nil {
		return errorContents(req.Params.URI, "stats reader not configured"), nil
	}
	return jsonContents(req.Params.URI, s.deps.Stats.CurrentStats(ctx, usage.Filter{}))
}

func (s *Server) handleProjectionResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Stats == nil {
		return errorContents(req.Params.URI, "stats reader not configured"), nil
	}
	proj, err := s.deps.Stats.ProjectSpend(ctx, projectionDays)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, proj)
}

// jsonContents marshals v into a single JSON resource body.
func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// errorContents reports a configuration problem as a readable resource body
// rather than a protocol error, so clients can still list and read the URI.
func errorContents(uri, msg string) []mcplib.ResourceContents {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(body)},
	}
}
