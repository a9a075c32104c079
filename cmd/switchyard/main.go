package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/switchyard-ai/switchyard/internal/adapter/gateway"
	syhttp "github.com/switchyard-ai/switchyard/internal/adapter/http"
	"github.com/switchyard-ai/switchyard/internal/adapter/mcp"
	synats "github.com/switchyard-ai/switchyard/internal/adapter/nats"
	"github.com/switchyard-ai/switchyard/internal/adapter/natskv"
	"github.com/switchyard-ai/switchyard/internal/adapter/otel"
	"github.com/switchyard-ai/switchyard/internal/adapter/postgres"
	"github.com/switchyard-ai/switchyard/internal/adapter/ristretto"
	"github.com/switchyard-ai/switchyard/internal/adapter/tiered"
	"github.com/switchyard-ai/switchyard/internal/adapter/ws"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/domain/pricing"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/logger"
	"github.com/switchyard-ai/switchyard/internal/middleware"
	"github.com/switchyard-ai/switchyard/internal/port/cache"
	"github.com/switchyard-ai/switchyard/internal/resilience"
	"github.com/switchyard-ai/switchyard/internal/service"
)

const version = "0.1.0"

const (
	probeCacheBucket  = "switchyard-probe-cache"
	idempotencyBucket = "switchyard-idempotency"
	idempotencyTTL    = 24 * time.Hour
)

func main() {
	boot := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(boot)

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "migrate" {
		if err := runMigrate(args[1:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"config_file", yamlPath,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, err := otel.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := synats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	// Probe results are shared across instances through a NATS KV bucket.
	// Without it each instance still probes on its own.
	var probeCache cache.Cache = l1
	if kv, err := queue.KeyValue(ctx, probeCacheBucket, cfg.Router.ProbeTTL); err != nil {
		slog.Warn("probe cache KV bucket unavailable, using in-process cache only", "error", err)
	} else {
		probeCache = tiered.New(l1, natskv.New(kv), cfg.Router.ProbeTTL)
	}

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin, slog.Default())
	store := postgres.NewStore(pool)

	client := gateway.NewClient(cfg.Providers, cfg.Router.ProbeTimeout)
	for _, id := range provider.All() {
		client.SetBreaker(id, resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}

	registry := service.NewRegistry(client, probeCache, queue, hub, cfg.Router)

	ceilings, err := routing.ParseCeilings(cfg.Budget.Monthly)
	if err != nil {
		return fmt.Errorf("budget config: %w", err)
	}
	prices, err := pricing.FromRates(priceRates(cfg.Pricing))
	if err != nil {
		return fmt.Errorf("pricing config: %w", err)
	}

	routerSvc := service.NewRouterService(classify.New(classify.Config{
		SimpleMaxWords:  cfg.Router.SimpleMaxWords,
		ComplexMinWords: cfg.Router.ComplexMinWords,
	}), registry, store, ceilings)
	ledgerSvc := service.NewLedgerService(store, prices, queue, hub)

	if cfg.Telemetry.Enabled {
		metrics, err := otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		registry.SetMetrics(metrics)
		routerSvc.SetMetrics(metrics)
		ledgerSvc.SetMetrics(metrics)
	}

	registry.Start(ctx)

	// SIGHUP re-reads the config and swaps prices and budget ceilings in
	// place. Everything else keeps its boot-time value until restart.
	holder := config.NewHolder(cfg, yamlPath)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload rejected, keeping previous", "error", err)
				continue
			}
			next := holder.Get()
			if c, err := routing.ParseCeilings(next.Budget.Monthly); err != nil {
				slog.Error("reloaded budget ceilings invalid, keeping previous", "error", err)
			} else {
				routerSvc.ReplaceCeilings(c)
			}
			if t, err := pricing.FromRates(priceRates(next.Pricing)); err != nil {
				slog.Error("reloaded pricing invalid, keeping previous", "error", err)
			} else {
				ledgerSvc.ReplacePrices(t)
			}
			slog.Info("config reloaded", "path", yamlPath)
		}
	}()

	// --- HTTP ---

	rl := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rl.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	var idem func(http.Handler) http.Handler
	if kv, err := queue.KeyValue(ctx, idempotencyBucket, idempotencyTTL); err != nil {
		slog.Warn("idempotency replay disabled", "error", err)
	} else {
		idem = middleware.Idempotency(kv)
	}

	handlers := &syhttp.Handlers{
		Router:    routerSvc,
		Ledger:    ledgerSvc,
		Providers: registry,
		Prices:    prices,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(syhttp.Logger)
	r.Use(syhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(syhttp.SecurityHeaders)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware("switchyard"))
	}

	// Health and the websocket stay outside the timeout and rate limit;
	// probes must not be throttled and /ws connections outlive any timeout.
	r.Get("/health", healthHandler(pool, queue))
	r.Get("/ws", hub.HandleWS)

	r.Group(func(api chi.Router) {
		api.Use(chimw.Timeout(30 * time.Second))
		api.Use(rl.Handler)
		if idem != nil {
			api.Use(idem)
		}
		syhttp.MountRoutes(api, handlers)
	})

	// --- MCP ---

	var mcpSrv *mcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcp.NewServer(mcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "switchyard",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, mcp.ServerDeps{
			Stats:     ledgerSvc,
			Router:    routerSvc,
			Providers: registry,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Error("mcp shutdown", "error", err)
		}
	}
	cancel()
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain", "error", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown", "error", err)
	}
	return nil
}

// priceRates converts configured pricing entries into table rates.
func priceRates(prices []config.Price) []pricing.Rate {
	rates := make([]pricing.Rate, len(prices))
	for i, p := range prices {
		rates[i] = pricing.Rate{
			Provider:    p.Provider,
			Model:       p.Model,
			InputPer1K:  p.InputPer1K,
			OutputPer1K: p.OutputPer1K,
		}
	}
	return rates
}

// healthHandler returns an http.HandlerFunc that reports dependency health.
// Degraded dependencies flip the status code so load balancers can pull the
// instance without parsing the body.
func healthHandler(pool *pgxpool.Pool, queue *synats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
