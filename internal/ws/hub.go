package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sender delivers outbound events to users. Implemented by Hub; the
// interface keeps services testable without live connections.
type Sender interface {
	SendTo(userID string, ev Outbound) bool
	IsOnline(userID string) bool
}

// Hub tracks at most one live connection per user id. A client becomes
// visible to the rest of the system only after Bind, which happens when
// its register event is handled.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
	log     zerolog.Logger

	// OnMessage is invoked for every inbound frame, on the reading
	// goroutine of the connection that produced it. Must be set before
	// any connection is served.
	OnMessage func(c *Client, in Inbound)

	// OnDisconnect is invoked when a bound connection drops and was
	// still the current one for its user.
	OnDisconnect func(userID string)
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// Bind associates a connection with a user id, replacing any prior
// connection for the same id. The replaced connection's send channel is
// closed, which ends its write pump and closes the socket. A connection
// re-registering under a different id gives up its old binding; the
// released id is returned so the caller can mark it offline.
func (h *Hub) Bind(c *Client, userID string) (released string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ""
	}
	if c.userID != "" && c.userID != userID {
		if cur, ok := h.clients[c.userID]; ok && cur == c {
			delete(h.clients, c.userID)
			released = c.userID
		}
	}
	if prev, ok := h.clients[userID]; ok && prev != c {
		close(prev.send)
		prev.replaced = true
	}
	c.userID = userID
	h.clients[userID] = c

	h.log.Debug().Str("user_id", userID).Int("connections", len(h.clients)).Msg("connection bound")
	return released
}

// remove drops a connection from the registry. Returns the bound user
// id and whether this connection was still the current one for it.
func (h *Hub) remove(c *Client) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == "" {
		return "", false
	}
	if c.replaced {
		return c.userID, false
	}
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
		h.log.Debug().Str("user_id", c.userID).Int("connections", len(h.clients)).Msg("connection removed")
		return c.userID, true
	}
	return c.userID, false
}

// SendTo delivers an event to the user's live connection. Delivery is
// best-effort: if the user is offline or their send buffer is full the
// event is dropped and SendTo reports false.
func (h *Hub) SendTo(userID string, ev Outbound) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case c.send <- ev:
		return true
	default:
		h.log.Warn().Str("user_id", userID).Str("event", ev.Type).Msg("send buffer full, event dropped")
		return false
	}
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Close terminates all live connections. Safe to call once during
// shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		c.replaced = true
		delete(h.clients, id)
	}
}

func (h *Hub) dispatch(c *Client, in Inbound) {
	if h.OnMessage != nil {
		h.OnMessage(c, in)
	}
}
