package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"local.dev/nexboard-backend/internal/models"
)

const writeWait = 10 * time.Second

type Client struct {
	conn *websocket.Conn
	send chan models.Feed
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the connection and keeps it registered until the client
// goes away. The read loop exists only to notice the close.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{conn: conn, send: make(chan models.Feed, 8)}
	hub.Register(client)
	go client.writePump()

	go func() {
		defer func() {
			hub.Unregister(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writePump drains the client's send buffer onto the socket. It exits when
// the hub closes the channel on unregister or when a write fails, closing
// the socket either way so the read loop unwinds too.
func (c *Client) writePump() {
	defer c.conn.Close()
	for f := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(f); err != nil {
			return
		}
	}
}
