package chat

import (
	"time"

	"directchat/internal/user"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum frame size allowed from peer.
	sendBuffer     = 256
)

// Client is one authenticated websocket connection. It keeps the token it was admitted
// with so every privileged event can re-check it.
type Client struct {
	router *Router
	conn   *websocket.Conn
	send   chan []byte

	userID int64
	user   *user.User
	token  string
}

func newClient(rt *Router, conn *websocket.Conn, u *user.User, tokenString string) *Client {
	return &Client{
		router: rt,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: u.ID,
		user:   u,
		token:  tokenString,
	}
}

// readPump handles inbound frames one at a time until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.router.hub.Unsubscribe(c.userID, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.router.logger.Warnf("Connection of %s closed: %v", c.user.Username, err)
			}
			return
		}
		c.router.dispatch(c, message)
	}
}

// writePump drains the outbound queue. Each queued event is its own text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
