package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"quill/internal/middleware"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 8
	maxTotalConns   = 10000
)

var (
	ErrUserConnLimit  = errors.New("user connection limit reached")
	ErrTotalConnLimit = errors.New("server connection limit reached")
	ErrHubClosed      = errors.New("notification hub is shut down")
)

// Hub relays pub/sub events to the websocket clients of the users they are
// addressed to. Posts-channel events go to every connected client.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uint]map[*Client]struct{}
	total  int
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

// Register adds a connection for userID. conn may be nil in tests that only
// read Client.Send.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= maxTotalConns {
		return nil, ErrTotalConnLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.total++
	return client, nil
}

// Unregister removes the client and stops its write pump. Calling it twice
// is harmless.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.total--
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()
	client.stop()
}

// Connections returns how many sockets userID has open.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// SendTo queues payload for every connection of userID.
func (h *Hub) SendTo(userID uint, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(payload)
	}
}

// SendAll queues payload for every connection.
func (h *Hub) SendAll(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(payload)
		}
	}
}

// Dispatch routes one event received on channel.
func (h *Hub) Dispatch(channel string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		middleware.Logger.Warn("cannot encode event for sockets", "event_type", ev.Type, "error", err)
		return
	}
	if channel == PostsChannel {
		h.SendAll(payload)
		return
	}
	userID, ok := ParseUserChannel(channel)
	if !ok {
		middleware.Logger.Warn("event on unknown channel", "channel", channel)
		return
	}
	h.SendTo(userID, payload)
}

// Start subscribes to n and dispatches events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context, n *Notifier) error {
	return n.Subscribe(ctx, h.Dispatch)
}

// Shutdown unregisters every client; each write pump sends a close frame
// on its way out. Later Register calls fail.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	h.closed = true
	var clients []*Client
	for _, m := range h.conns {
		for c := range m {
			clients = append(clients, c)
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	return nil
}
