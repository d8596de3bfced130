// Package ws carries the realtime side of messaging: the presence registry
// of live connections (Hub) and the per-connection gateway protocol.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event is the JSON frame exchanged over a socket, both directions.
type Event struct {
	Type    string      `json:"type"`
	Message interface{} `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`

	// Client -> server fields.
	Token      string `json:"token,omitempty"`
	UserID     uint   `json:"userId,omitempty"`
	ReceiverID uint   `json:"receiverId,omitempty"`
	Content    string `json:"content,omitempty"`
	MessageID  uint   `json:"messageId,omitempty"`
}

// Client is one live connection of an authenticated user. A user may hold
// several at once (tabs, devices); each gets its own send buffer and loops.
type Client struct {
	ID     string
	UserID uint
	Conn   *websocket.Conn
	Send   chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub maps user ids to their live connections. It is transient by design:
// nothing is persisted and the map is empty on every process start. The hub
// is constructed once in main and injected; it is lookup-only and never a
// source of truth for identity.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: map[uint]map[*Client]struct{}{},
	}
}

// Register adds a connection for userID and starts its write and keep-alive
// loops.
func (h *Hub) Register(userID uint, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

// Unregister removes the connection and closes it. No-op if the client was
// already removed.
func (h *Hub) Unregister(c *Client) {
	c.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}

	_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")
}

// ConnectionsFor returns the user's current live connections, possibly none.
func (h *Hub) ConnectionsFor(userID uint) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.clients[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser queues ev on every live connection of userID and reports
// whether any connection accepted it. Push is best-effort, at most once: a
// full send buffer drops the frame and the client catches up by polling.
func (h *Hub) SendToUser(userID uint, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for c := range h.clients[userID] {
		select {
		case c.Send <- ev:
			delivered = true
		default:
			// buffer full, drop
		}
	}
	return delivered
}

// trySend queues ev without blocking; a full buffer drops the frame.
func (c *Client) trySend(ev Event) {
	select {
	case c.Send <- ev:
	default:
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.Send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = wsjson.Write(writeCtx, c.Conn, ev)
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Conn.Ping(pingCtx)
			cancel()
		}
	}
}
