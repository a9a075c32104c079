// Package gateway probes the health of the configured AI backends over
// their OpenAI-compatible HTTP endpoints.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/resilience"
)

// healthPath is served by every OpenAI-compatible backend, including a
// local ollama.
const healthPath = "/v1/models"

// target is one configured backend.
type target struct {
	endpoint string
	model    string
}

// Client probes backend endpoints and knows which model each one serves.
// It implements the backend.Prober port.
type Client struct {
	targets    map[provider.ID]target
	breakers   map[provider.ID]*resilience.Breaker
	httpClient *http.Client
}

// NewClient builds a probe client from the configured endpoints. Providers
// with an empty endpoint are not probed and never report available.
func NewClient(cfg config.Providers, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &Client{
		targets:  make(map[provider.ID]target, 4),
		breakers: make(map[provider.ID]*resilience.Breaker, 4),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	add := func(id provider.ID, p config.Provider) {
		if p.Endpoint == "" {
			return
		}
		c.targets[id] = target{endpoint: strings.TrimRight(p.Endpoint, "/"), model: p.Model}
	}
	add(provider.HighQualityCloud, cfg.HighQualityCloud)
	add(provider.CheapCloud, cfg.CheapCloud)
	add(provider.CodeSpecialized, cfg.CodeSpecialized)
	add(provider.FreeLocal, cfg.FreeLocal)

	return c
}

// SetBreaker attaches a circuit breaker to one provider's probes. Each
// provider gets its own breaker so a flapping backend cannot shade the
// others.
func (c *Client) SetBreaker(id provider.ID, b *resilience.Breaker) {
	c.breakers[id] = b
}

// Providers returns the configured providers in canonical order.
func (c *Client) Providers() []provider.ID {
	var out []provider.ID
	for _, id := range provider.All() {
		if _, ok := c.targets[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Model returns the model the given provider serves, or "" when the
// provider is not configured.
func (c *Client) Model(id provider.ID) string {
	return c.targets[id].model
}

// BreakerState reports the probe circuit for a provider, or "" when no
// breaker is attached.
func (c *Client) BreakerState(id provider.ID) string {
	if b, ok := c.breakers[id]; ok {
		return b.State()
	}
	return ""
}

// Health probes one backend. Any response counts as the backend being
// reachable: a 2xx means healthy, an error status means unhealthy with a
// nil error. Transport failures and timeouts surface as errors and count
// against the provider's breaker.
func (c *Client) Health(ctx context.Context, id provider.ID) (bool, error) {
	t, ok := c.targets[id]
	if !ok {
		return false, fmt.Errorf("provider %s not configured", id)
	}

	var healthy bool
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+healthPath, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("probe %s: %w", id, err)
		}
		defer func() { _ = resp.Body.Close() }()

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		healthy = resp.StatusCode < 400
		return nil
	}

	if b, ok := c.breakers[id]; ok {
		if err := b.Execute(call); err != nil {
			return false, err
		}
		return healthy, nil
	}

	if err := call(); err != nil {
		return false, err
	}
	return healthy, nil
}
