// Package ws implements the WebSocket adapter for pushing live usage and
// provider events to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	userID string
}

// Hub manages all active WebSocket connections. Connections that identify a
// user additionally receive that user's scoped events.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	byUser map[string]map[*conn]struct{}
	origin string
	log    *slog.Logger
}

// NewHub creates a new WebSocket hub. An empty origin disables the origin
// check (local development); a nil logger falls back to slog.Default.
func NewHub(origin string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		conns:  make(map[*conn]struct{}),
		byUser: make(map[string]map[*conn]struct{}),
		origin: origin,
		log:    log,
	}
}

// HandleWS upgrades the request to a WebSocket connection. The optional
// user_id query parameter subscribes the connection to that user's scoped
// events on top of the global broadcasts.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.origin == "" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{h.origin}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("user_id")

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, userID: userID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	if userID != "" {
		if h.byUser[userID] == nil {
			h.byUser[userID] = make(map[*conn]struct{})
		}
		h.byUser[userID][c] = struct{}{}
	}
	h.mu.Unlock()

	h.log.Info("websocket connected", "remote", r.RemoteAddr, "user_id", userID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// BroadcastToUser sends a message to every connection owned by one user.
func (h *Hub) BroadcastToUser(ctx context.Context, userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.byUser[userID] {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug("websocket write failed", "user_id", userID, "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// UserConnectionCount returns the number of active connections for one user.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		if c.userID != "" {
			delete(h.byUser[c.userID], c)
			if len(h.byUser[c.userID]) == 0 {
				delete(h.byUser, c.userID)
			}
		}
		h.log.Info("websocket disconnected", "user_id", c.userID)
	}
}
