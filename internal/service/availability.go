package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	syotel "github.com/switchyard-ai/switchyard/internal/adapter/otel"
	"github.com/switchyard-ai/switchyard/internal/adapter/ws"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/port/backend"
	"github.com/switchyard-ai/switchyard/internal/port/broadcast"
	"github.com/switchyard-ai/switchyard/internal/port/cache"
	"github.com/switchyard-ai/switchyard/internal/port/messagequeue"
)

// probeResult is the cached outcome of one liveness probe.
type probeResult struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}

// probeKey uses a dot separator: the key must stay valid for a JetStream
// KV bucket, which rejects colons.
func probeKey(id provider.ID) string { return "probe." + string(id) }

// ProviderStatus is one row of the provider listing.
type ProviderStatus struct {
	Provider   provider.ID `json:"provider"`
	Configured bool        `json:"configured"`
	Model      string      `json:"model,omitempty"`
	Healthy    bool        `json:"healthy"`
	Breaker    string      `json:"breaker,omitempty"`
	CheckedAt  *time.Time  `json:"checked_at,omitempty"`
}

// Registry tracks which providers can take traffic. Probe results live in
// the cache for the configured TTL, so the router only pays for a live
// probe on cold providers. Health transitions are pushed to WebSocket
// clients and onto the providers.health subject.
type Registry struct {
	prober     backend.Prober
	cache      cache.Cache
	queue      messagequeue.Queue
	hub        broadcast.Broadcaster
	configured provider.Set
	sem        *semaphore.Weighted
	metrics    *syotel.Metrics

	probeTimeout time.Duration
	ttl          time.Duration
	interval     time.Duration

	mu    sync.Mutex
	known map[provider.ID]bool // last observed health, for transition detection
}

// NewRegistry creates the availability registry. queue and hub may be nil;
// transitions are then only logged.
func NewRegistry(prober backend.Prober, c cache.Cache, queue messagequeue.Queue, hub broadcast.Broadcaster, cfg config.Router) *Registry {
	maxProbes := cfg.MaxConcurrentProbes
	if maxProbes < 1 {
		maxProbes = 1
	}
	return &Registry{
		prober:       prober,
		cache:        c,
		queue:        queue,
		hub:          hub,
		configured:   provider.NewSet(prober.Providers()...),
		sem:          semaphore.NewWeighted(int64(maxProbes)),
		probeTimeout: cfg.ProbeTimeout,
		ttl:          cfg.ProbeTTL,
		interval:     cfg.ProbeInterval,
		known:        make(map[provider.ID]bool),
	}
}

// SetMetrics attaches metric instruments. Probing works without them.
func (r *Registry) SetMetrics(m *syotel.Metrics) { r.metrics = m }

// Available reports whether the provider can take traffic right now. A
// fresh cached probe answers directly; otherwise one bounded live probe
// runs. Unconfigured providers are never available.
func (r *Registry) Available(ctx context.Context, id provider.ID) bool {
	if !r.configured.Contains(id) {
		return false
	}
	return r.status(ctx, id).Healthy
}

// Model returns the configured model for a provider.
func (r *Registry) Model(id provider.ID) string {
	return r.prober.Model(id)
}

// Statuses returns the state of every supported provider, probing the
// configured ones whose cached result has expired.
func (r *Registry) Statuses(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(provider.All()))
	for _, id := range provider.All() {
		st := ProviderStatus{Provider: id}
		if r.configured.Contains(id) {
			res := r.status(ctx, id)
			st.Configured = true
			st.Model = r.prober.Model(id)
			st.Breaker = r.prober.BreakerState(id)
			st.Healthy = res.Healthy
			if !res.CheckedAt.IsZero() {
				at := res.CheckedAt
				st.CheckedAt = &at
			}
		}
		out = append(out, st)
	}
	return out
}

// Start launches the background sweep that keeps the probe cache warm and
// announces health transitions. It returns immediately; the sweep stops
// when ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		r.sweep(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
	slog.Info("availability registry started",
		"providers", len(r.configured), "interval", r.interval, "ttl", r.ttl)
}

// sweep probes every configured provider, bounded by the shared semaphore.
func (r *Registry) sweep(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range r.prober.Providers() {
		wg.Add(1)
		go func(id provider.ID) {
			defer wg.Done()
			r.probe(ctx, id)
		}(id)
	}
	wg.Wait()
}

// status answers from the cache when possible, probing otherwise.
func (r *Registry) status(ctx context.Context, id provider.ID) probeResult {
	if res, ok := r.cached(ctx, id); ok {
		return res
	}
	return r.probe(ctx, id)
}

func (r *Registry) cached(ctx context.Context, id provider.ID) (probeResult, bool) {
	data, ok, err := r.cache.Get(ctx, probeKey(id))
	if err != nil {
		slog.Warn("probe cache read failed", "provider", id, "error", err)
		return probeResult{}, false
	}
	if !ok {
		return probeResult{}, false
	}

	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return probeResult{}, false
	}
	return res, true
}

// probe runs one live liveness check. A probe error or timeout means
// unavailable, never a hang: the per-probe context bounds the wait.
func (r *Registry) probe(ctx context.Context, id provider.ID) probeResult {
	res := probeResult{CheckedAt: time.Now().UTC()}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		// Caller gave up while queued; report unavailable without
		// polluting the cache or the transition state.
		return res
	}
	defer r.sem.Release(1)

	pctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	pctx, span := syotel.StartProbeSpan(pctx, string(id))

	start := time.Now()
	healthy, err := r.prober.Health(pctx, id)
	span.End()
	if err != nil {
		slog.Warn("provider probe failed", "provider", id, "error", err)
		healthy = false
	}
	res.Healthy = healthy

	if r.metrics != nil {
		r.metrics.ProbeDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("provider", string(id)),
			attribute.Bool("healthy", healthy),
		))
	}

	r.observe(ctx, id, res)
	return res
}

// observe caches the result and announces a health transition when the
// observed state differs from the last one.
func (r *Registry) observe(ctx context.Context, id provider.ID, res probeResult) {
	if data, err := json.Marshal(res); err == nil {
		if err := r.cache.Set(ctx, probeKey(id), data, r.ttl); err != nil {
			slog.Warn("probe cache write failed", "provider", id, "error", err)
		}
	}

	r.mu.Lock()
	prev, seen := r.known[id]
	r.known[id] = res.Healthy
	r.mu.Unlock()
	if seen && prev == res.Healthy {
		return
	}

	slog.Info("provider health changed", "provider", id, "healthy", res.Healthy)

	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, ws.EventProviderHealth, ws.ProviderHealthEvent{
			Provider:  id,
			Healthy:   res.Healthy,
			CheckedAt: res.CheckedAt,
		})
	}
	if r.queue != nil {
		payload, err := json.Marshal(messagequeue.ProviderHealthPayload{
			Provider:  string(id),
			Healthy:   res.Healthy,
			CheckedAt: res.CheckedAt,
		})
		if err == nil {
			if err := r.queue.Publish(ctx, messagequeue.SubjectProviderHealth, payload); err != nil {
				slog.Warn("provider health publish failed", "provider", id, "error", err)
			}
		}
	}
}
