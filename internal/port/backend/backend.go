// Package backend defines the port interface for talking to AI provider
// backends. The router only needs liveness and model identity from a
// backend; request proxying is out of scope.
package backend

import (
	"context"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
)

// Prober checks whether a provider backend is reachable and healthy.
type Prober interface {
	// Health reports whether the provider's backend answered its health
	// endpoint within the probe timeout. A false return with a nil error
	// means the backend responded but declared itself unhealthy.
	Health(ctx context.Context, id provider.ID) (bool, error)

	// Providers lists the provider IDs this prober is configured for.
	Providers() []provider.ID

	// Model returns the configured model identifier for a provider, or
	// an empty string when the provider is not configured.
	Model(id provider.ID) string

	// BreakerState reports the probe circuit for a provider: "closed",
	// "open", "half-open", or "" when no breaker is attached.
	BreakerState(id provider.ID) string
}
