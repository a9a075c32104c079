// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to connected clients. Delivery is
// best-effort; implementations never block the caller on a slow client.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every connected client.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// SendToUser sends a typed event to the connections registered for one
	// user. Unknown users are a no-op.
	SendToUser(ctx context.Context, userID, eventType string, payload any)
}
