package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getUsageStatsTool(),
		s.getCostProjectionTool(),
		s.previewRouteTool(),
		s.listProvidersTool(),
	)
}

func (s *Server) getUsageStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_usage_stats",
		mcplib.WithDescription("Get per-provider usage totals and the grand summary, optionally filtered"),
		mcplib.WithString("user_id",
			mcplib.Description("Filter to one user"),
		),
		mcplib.WithString("tool_context",
			mcplib.Description("Filter to one tool context, e.g. chat or ide"),
		),
		mcplib.WithString("provider",
			mcplib.Description("Filter to one provider"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetUsageStats,
	}
}

func (s *Server) getCostProjectionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_cost_projection",
		mcplib.WithDescription("Extrapolate current spend to daily, weekly, and monthly rates"),
		mcplib.WithNumber("days",
			mcplib.Description("Lookback window in days the total is treated as (default 30)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetCostProjection,
	}
}

func (s *Server) previewRouteTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("preview_route",
		mcplib.WithDescription("Run the routing policy for a request text and return the decision without dispatching anything"),
		mcplib.WithString("text",
			mcplib.Required(),
			mcplib.Description("The request text to classify and route"),
		),
		mcplib.WithString("tool_context",
			mcplib.Description("Originating tool context, e.g. chat or ide"),
		),
		mcplib.WithString("cost_preference",
			mcplib.Description("cost-first | balanced | quality-first"),
		),
		mcplib.WithString("caller_id",
			mcplib.Description("Caller identity to route as (default mcp-client)"),
		),
		mcplib.WithArray("allowed_providers",
			mcplib.Description("Restrict the preview to these providers"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handlePreviewRoute,
	}
}

func (s *Server) listProvidersTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_providers",
		mcplib.WithDescription("List the supported providers with configuration, health, and circuit state"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListProviders,
	}
}

func (s *Server) handleGetUsageStats(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}
	args := req.GetArguments()
	var f usage.Filter
	if v, ok := args["user_id"].(string); ok {
		f.UserID = v
	}
	if v, ok := args["tool_context"].(string); ok {
		f.ToolContext = v
	}
	if v, ok := args["provider"].(string); ok && v != "" {
		p := provider.ID(v)
		if !provider.Valid(p) {
			return mcplib.NewToolResultError("unknown provider: " + v), nil
		}
		f.Provider = p
	}

	stats := s.deps.Stats.CurrentStats(ctx, f)
	data, err := json.Marshal(stats)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal stats", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetCostProjection(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}
	days := 30
	if v, ok := req.GetArguments()["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	proj, err := s.deps.Stats.ProjectSpend(ctx, days)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to project spend", err), nil
	}
	data, err := json.Marshal(proj)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal projection", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handlePreviewRoute(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Router == nil {
		return mcplib.NewToolResultError("router not configured"), nil
	}
	args := req.GetArguments()
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return mcplib.NewToolResultError("text is required"), nil
	}

	r := routing.Request{
		Text:             text,
		CallerID:         "mcp-client",
		AllowedProviders: provider.All(),
	}
	if v, ok := args["tool_context"].(string); ok {
		r.ToolContext = v
	}
	if v, ok := args["caller_id"].(string); ok && v != "" {
		r.CallerID = v
	}
	if v, ok := args["cost_preference"].(string); ok {
		r.CostPreference = routing.CostPreference(v)
	}
	if raw, ok := args["allowed_providers"].([]any); ok && len(raw) > 0 {
		ids := make([]provider.ID, 0, len(raw))
		for _, item := range raw {
			if name, ok := item.(string); ok {
				ids = append(ids, provider.ID(name))
			}
		}
		r.AllowedProviders = ids
	}

	dec, err := s.deps.Router.Decide(ctx, r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("routing rejected", err), nil
	}
	out := previewResult{
		Decision:        dec,
		EstimatedTokens: classify.EstimateTokens(text),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal decision", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// previewResult pairs the routing decision with a rough token weight of the
// text so clients can judge the size of what they are about to send.
type previewResult struct {
	Decision        *routing.Decision `json:"decision"`
	EstimatedTokens int64             `json:"estimated_tokens"`
}

func (s *Server) handleListProviders(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Providers == nil {
		return mcplib.NewToolResultError("provider lister not configured"), nil
	}
	statuses := s.deps.Providers.Statuses(ctx)
	data, err := json.Marshal(statuses)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal providers", err), nil
	}
	return toolResultJSON(string(data)), nil
}
