package notifications

import (
	"sync"
	"time"

	"quill/internal/middleware"
	"quill/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// The socket is receive-only; anything bigger than a control frame is
	// a misbehaving client.
	maxMessageSize = 512

	sendBuffer = 64
)

// Client is one websocket connection registered with a Hub.
type Client struct {
	hub    *Hub
	Conn   *websocket.Conn
	UserID uint

	// Send carries encoded events to WritePump.
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// TrySend queues message without blocking. A full buffer drops the message
// and queues a notice so the client knows to refetch.
func (c *Client) TrySend(message []byte) {
	select {
	case <-c.done:
		observability.WebSocketDrops.WithLabelValues("closed").Inc()
		return
	default:
	}

	select {
	case c.Send <- message:
	default:
		observability.WebSocketDrops.WithLabelValues("full").Inc()
		middleware.Logger.Warn("notification buffer full, dropping event", "user_id", c.UserID)
		select {
		case c.Send <- []byte(`{"type":"events.dropped","reason":"buffer_full"}`):
		default:
		}
	}
}

// ReadPump consumes control frames until the peer goes away, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("notification socket read failed", "user_id", c.UserID, "error", err)
			}
			return
		}
	}
}

// WritePump is the only writer on the connection. It returns when the
// client is unregistered or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		}
	}
}
