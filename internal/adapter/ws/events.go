package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
)

// Event type constants for WebSocket messages.
const (
	EventUsageDelta     = "usage.delta"
	EventUsageReset     = "usage.reset"
	EventProviderHealth = "provider.health"
)

// UsageResetEvent is broadcast after a usage reset.
type UsageResetEvent struct {
	Provider   string    `json:"provider,omitempty"` // empty = all providers
	Rows       int64     `json:"rows"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProviderHealthEvent is broadcast when a provider's availability changes.
type ProviderHealthEvent struct {
	Provider  provider.ID `json:"provider"`
	Healthy   bool        `json:"healthy"`
	CheckedAt time.Time   `json:"checked_at"`
}

// BroadcastEvent marshals a typed event and broadcasts it to all clients.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// SendToUser marshals a typed event and sends it to one user's connections.
// Delivery is best-effort; a user with no open connections loses the event.
func (h *Hub) SendToUser(ctx context.Context, userID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToUser(ctx, userID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
