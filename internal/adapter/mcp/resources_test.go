package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
	"github.com/switchyard-ai/switchyard/internal/service"
)

type stubStats struct {
	stats   usage.Stats
	proj    usage.Projection
	projErr error
	days    int
}

func (s *stubStats) CurrentStats(context.Context, usage.Filter) usage.Stats { return s.stats }

func (s *stubStats) ProjectSpend(_ context.Context, days int) (usage.Projection, error) {
	s.days = days
	return s.proj, s.projErr
}

type stubProviders struct{ rows []service.ProviderStatus }

func (s *stubProviders) Statuses(context.Context) []service.ProviderStatus { return s.rows }

func newResourceServer(deps ServerDeps) *Server {
	return NewServer(ServerConfig{Name: "test", Version: "0.0.0"}, deps)
}

func resourceText(t *testing.T, contents []mcplib.ResourceContents, wantURI string) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents length = %d, want 1", len(contents))
	}
	text, ok := contents[0].(mcplib.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T, want TextResourceContents", contents[0])
	}
	if text.URI != wantURI {
		t.Fatalf("URI = %q, want %q", text.URI, wantURI)
	}
	if text.MIMEType != "application/json" {
		t.Fatalf("MIMEType = %q", text.MIMEType)
	}
	return text.Text
}

func TestProvidersResource(t *testing.T) {
	s := newResourceServer(ServerDeps{Providers: &stubProviders{
		rows: []service.ProviderStatus{
			{Provider: provider.CheapCloud, Configured: true, Healthy: true},
			{Provider: provider.FreeLocal, Configured: false, Healthy: false},
		},
	}})

	contents, err := s.handleProvidersResource(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "switchyard://providers"},
	})
	if err != nil {
		t.Fatalf("handleProvidersResource: %v", err)
	}

	var rows []service.ProviderStatus
	if err := json.Unmarshal([]byte(resourceText(t, contents, "switchyard://providers")), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 || rows[0].Provider != provider.CheapCloud {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestProvidersResourceUnconfigured(t *testing.T) {
	s := newResourceServer(ServerDeps{})

	contents, err := s.handleProvidersResource(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "switchyard://providers"},
	})
	if err != nil {
		t.Fatalf("handleProvidersResource: %v", err)
	}
	if text := resourceText(t, contents, "switchyard://providers"); !strings.Contains(text, "not configured") {
		t.Fatalf("body = %q, want a configuration error", text)
	}
}

func TestUsageSummaryResource(t *testing.T) {
	stats := usage.Stats{}
	stats.Summary.Requests = 7
	stats.Summary.TotalCost = decimal.RequireFromString("0.42")
	s := newResourceServer(ServerDeps{Stats: &stubStats{stats: stats}})

	contents, err := s.handleUsageSummaryResource(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "switchyard://usage/summary"},
	})
	if err != nil {
		t.Fatalf("handleUsageSummaryResource: %v", err)
	}

	var got usage.Stats
	if err := json.Unmarshal([]byte(resourceText(t, contents, "switchyard://usage/summary")), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Summary.Requests != 7 || !got.Summary.TotalCost.Equal(stats.Summary.TotalCost) {
		t.Fatalf("summary = %+v", got.Summary)
	}
}

func TestProjectionResource(t *testing.T) {
	stub := &stubStats{proj: usage.Project(decimal.RequireFromString("3.00"), 30)}
	s := newResourceServer(ServerDeps{Stats: stub})

	contents, err := s.handleProjectionResource(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "switchyard://usage/projection"},
	})
	if err != nil {
		t.Fatalf("handleProjectionResource: %v", err)
	}
	if stub.days != projectionDays {
		t.Fatalf("projection horizon = %d, want %d", stub.days, projectionDays)
	}

	var got usage.Projection
	if err := json.Unmarshal([]byte(resourceText(t, contents, "switchyard://usage/projection")), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.WindowDays != 30 || !got.Monthly.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("projection = %+v", got)
	}
}

func TestProjectionResourceError(t *testing.T) {
	s := newResourceServer(ServerDeps{Stats: &stubStats{projErr: errors.New("ledger offline")}})

	_, err := s.handleProjectionResource(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "switchyard://usage/projection"},
	})
	if err == nil {
		t.Fatal("expected the projection error to surface")
	}
}
