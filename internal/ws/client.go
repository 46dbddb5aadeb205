package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufferSize = 64
)

// Client is a single websocket connection. Unbound until the register
// event is handled, after which it carries a user id.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Outbound

	// Guarded by hub.mu.
	userID   string
	replaced bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Outbound, sendBufferSize),
	}
}

// UserID returns the bound user id, or "" before registration.
func (c *Client) UserID() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.userID
}

// Reply sends an event directly to this connection, bypassing the
// registry. Used for error events before a connection is bound.
func (c *Client) Reply(ev Outbound) {
	select {
	case c.send <- ev:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		if userID, current := c.hub.remove(c); current && c.hub.OnDisconnect != nil {
			c.hub.OnDisconnect(userID)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		in, err := ParseInbound(data)
		if err != nil {
			c.Reply(Errorf("invalid message format"))
			continue
		}

		c.hub.dispatch(c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
