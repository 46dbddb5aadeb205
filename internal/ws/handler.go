package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin filtering happens at the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades GET /ws requests and starts the connection pumps.
// The connection stays anonymous until the client sends a register
// event.
func ServeWS(hub *Hub, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
			return
		}

		client := newClient(hub, conn)
		go client.writePump()
		go client.readPump()
	}
}
