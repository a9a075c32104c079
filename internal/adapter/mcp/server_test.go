package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	symcp "github.com/switchyard-ai/switchyard/internal/adapter/mcp"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
	"github.com/switchyard-ai/switchyard/internal/service"
)

// --- Mocks ---

type mockStats struct {
	stats    usage.Stats
	proj     usage.Projection
	projErr  error
	lastDays int
}

func (m *mockStats) CurrentStats(_ context.Context, _ usage.Filter) usage.Stats {
	return m.stats
}

func (m *mockStats) ProjectSpend(_ context.Context, days int) (usage.Projection, error) {
	m.lastDays = days
	return m.proj, m.projErr
}

type mockRouter struct {
	dec     *routing.Decision
	err     error
	lastReq routing.Request
}

func (m *mockRouter) Decide(_ context.Context, req routing.Request) (*routing.Decision, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.dec, nil
}

type mockProviders struct {
	rows []service.ProviderStatus
}

func (m *mockProviders) Statuses(_ context.Context) []service.ProviderStatus {
	return m.rows
}

func callTool(t *testing.T, s *symcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tools := s.MCPServer().ListTools()
	tool, ok := tools[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	cfg := symcp.ServerConfig{
		Addr:    ":8090",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := symcp.NewServer(cfg, symcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := symcp.ServerConfig{
		Addr:    ":0",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := symcp.NewServer(cfg, symcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"}, symcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	if len(tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools))
	}

	expectedTools := map[string]bool{
		"get_usage_stats":     false,
		"get_cost_projection": false,
		"preview_route":       false,
		"list_providers":      false,
	}
	for name := range tools {
		if _, ok := expectedTools[name]; ok {
			expectedTools[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleGetUsageStats(t *testing.T) {
	deps := symcp.ServerDeps{
		Stats: &mockStats{
			stats: usage.Stats{
				Providers: []usage.ProviderTotals{
					{Provider: provider.CheapCloud, Requests: 12, TotalCost: decimal.RequireFromString("0.5")},
				},
				Summary: usage.Summary{Requests: 12, TotalCost: decimal.RequireFromString("0.5")},
			},
		},
	}
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	text := resultText(t, callTool(t, s, "get_usage_stats", nil))

	var stats usage.Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(stats.Providers) != 1 || stats.Providers[0].Provider != provider.CheapCloud {
		t.Fatalf("providers = %+v", stats.Providers)
	}
	if !stats.Summary.TotalCost.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("summary cost = %s", stats.Summary.TotalCost)
	}
}

func TestHandleGetUsageStatsUnknownProvider(t *testing.T) {
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Stats: &mockStats{}})

	result := callTool(t, s, "get_usage_stats", map[string]any{"provider": "martian-cloud"})
	if !result.IsError {
		t.Fatal("expected error result for unknown provider")
	}
}

func TestHandleGetCostProjection(t *testing.T) {
	stats := &mockStats{
		proj: usage.Projection{
			WindowDays: 7,
			Daily:      decimal.RequireFromString("1.5"),
			Weekly:     decimal.RequireFromString("10.5"),
			Monthly:    decimal.RequireFromString("45"),
		},
	}
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Stats: stats})

	text := resultText(t, callTool(t, s, "get_cost_projection", map[string]any{"days": float64(7)}))

	if stats.lastDays != 7 {
		t.Fatalf("days passed through = %d, want 7", stats.lastDays)
	}
	var proj usage.Projection
	if err := json.Unmarshal([]byte(text), &proj); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !proj.Weekly.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("weekly = %s", proj.Weekly)
	}
}

func TestHandlePreviewRoute(t *testing.T) {
	router := &mockRouter{
		dec: &routing.Decision{
			Provider: provider.FreeLocal,
			Model:    "llama3.1:8b",
			Class:    routing.ClassSimple,
			Reason:   "simple request routed to the cheapest permitted provider",
		},
	}
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Router: router})

	text := resultText(t, callTool(t, s, "preview_route", map[string]any{"text": "hello"}))

	var out struct {
		Decision        routing.Decision `json:"decision"`
		EstimatedTokens int64            `json:"estimated_tokens"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if out.Decision.Provider != provider.FreeLocal {
		t.Fatalf("provider = %s", out.Decision.Provider)
	}
	if out.EstimatedTokens <= 0 {
		t.Fatalf("estimated tokens = %d, want > 0", out.EstimatedTokens)
	}
	if router.lastReq.Text != "hello" || router.lastReq.CallerID != "mcp-client" {
		t.Fatalf("request passed through = %+v", router.lastReq)
	}
	if len(router.lastReq.AllowedProviders) != len(provider.All()) {
		t.Fatalf("default allowlist = %v", router.lastReq.AllowedProviders)
	}
}

func TestHandlePreviewRouteAllowlist(t *testing.T) {
	router := &mockRouter{dec: &routing.Decision{Provider: provider.CheapCloud}}
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Router: router})

	callTool(t, s, "preview_route", map[string]any{
		"text":              "hello",
		"allowed_providers": []any{"cheap-cloud", "free-local"},
	})

	want := []provider.ID{provider.CheapCloud, provider.FreeLocal}
	if len(router.lastReq.AllowedProviders) != 2 {
		t.Fatalf("allowlist = %v, want %v", router.lastReq.AllowedProviders, want)
	}
	for i, id := range want {
		if router.lastReq.AllowedProviders[i] != id {
			t.Fatalf("allowlist = %v, want %v", router.lastReq.AllowedProviders, want)
		}
	}
}

func TestHandlePreviewRouteMissingText(t *testing.T) {
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Router: &mockRouter{}})

	result := callTool(t, s, "preview_route", nil)
	if !result.IsError {
		t.Fatal("expected error result for missing text")
	}
}

func TestHandlePreviewRoutePolicyRejection(t *testing.T) {
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"},
		symcp.ServerDeps{Router: &mockRouter{err: routing.ErrBudgetExceeded}})

	result := callTool(t, s, "preview_route", map[string]any{"text": "hello"})
	if !result.IsError {
		t.Fatal("expected error result for policy rejection")
	}
}

func TestHandleListProviders(t *testing.T) {
	deps := symcp.ServerDeps{
		Providers: &mockProviders{
			rows: []service.ProviderStatus{
				{Provider: provider.HighQualityCloud, Configured: true, Healthy: true, Model: "claude-sonnet"},
				{Provider: provider.FreeLocal, Configured: false},
			},
		},
	}
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	text := resultText(t, callTool(t, s, "list_providers", nil))

	var rows []service.ProviderStatus
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(rows) != 2 || rows[0].Provider != provider.HighQualityCloud {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := symcp.NewServer(symcp.ServerConfig{Name: "test", Version: "0.1.0"}, symcp.ServerDeps{})

	for _, name := range []string{"get_usage_stats", "get_cost_projection", "list_providers"} {
		result := callTool(t, s, name, nil)
		if !result.IsError {
			t.Errorf("tool %q: expected error result when deps are nil", name)
		}
	}

	result := callTool(t, s, "preview_route", map[string]any{"text": "hello"})
	if !result.IsError {
		t.Error("preview_route: expected error result when deps are nil")
	}
}

func authProbe(handler http.Handler, set func(*http.Request)) int {
	req := httptest.NewRequest(http.MethodGet, "/sse", http.NoBody)
	if set != nil {
		set(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled without key", func(t *testing.T) {
		if got := authProbe(symcp.AuthMiddleware("", inner), nil); got != http.StatusOK {
			t.Fatalf("status = %d, want 200", got)
		}
	})

	guarded := symcp.AuthMiddleware("sekrit", inner)

	t.Run("bearer token accepted", func(t *testing.T) {
		got := authProbe(guarded, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer sekrit")
		})
		if got != http.StatusOK {
			t.Fatalf("status = %d, want 200", got)
		}
	})

	t.Run("api key header accepted", func(t *testing.T) {
		got := authProbe(guarded, func(r *http.Request) {
			r.Header.Set("X-API-Key", "sekrit")
		})
		if got != http.StatusOK {
			t.Fatalf("status = %d, want 200", got)
		}
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		if got := authProbe(guarded, nil); got != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", got)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		got := authProbe(guarded, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer wrong")
		})
		if got != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", got)
		}
	})
}
