// Package mcp exposes routing previews and accounting queries to AI agents
// over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
	"github.com/switchyard-ai/switchyard/internal/service"
)

// StatsReader serves usage statistics and spend projections.
type StatsReader interface {
	CurrentStats(ctx context.Context, f usage.Filter) usage.Stats
	ProjectSpend(ctx context.Context, days int) (usage.Projection, error)
}

// RouteDecider runs the routing policy without dispatching anything.
type RouteDecider interface {
	Decide(ctx context.Context, req routing.Request) (*routing.Decision, error)
}

// ProviderLister reports the state of the provider fleet.
type ProviderLister interface {
	Statuses(ctx context.Context) []service.ProviderStatus
}

// ServerConfig holds the MCP server configuration.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// ServerDeps holds what the tools and resources read from. A nil field
// turns its tools into configuration-error results instead of panics.
type ServerDeps struct {
	Stats     StatsReader
	Router    RouteDecider
	Providers ProviderLister
}

// Server exposes Switchyard tools and resources over MCP SSE.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start serves MCP over SSE on the configured address and returns
// immediately. Serve errors after startup are logged, not returned.
func (s *Server) Start() error {
	sse := mcpserver.NewSSEServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: AuthMiddleware(s.cfg.APIKey, sse),
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts the MCP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
