package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// frame is the JSON envelope exchanged over the socket.
type frame struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`

	Token      string `json:"token,omitempty"`
	UserID     uint   `json:"userId,omitempty"`
	ReceiverID uint   `json:"receiverId,omitempty"`
	Content    string `json:"content,omitempty"`
	MessageID  uint   `json:"messageId,omitempty"`
}

// Realtime is one live socket to the gateway. Handlers are invoked from the
// read loop goroutine; register them before Connect.
type Realtime struct {
	client *Client

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	userID    uint

	onMessage      []func(Message)
	onError        []func(string)
	onDisconnected []func(error)
}

// Realtime returns the client's realtime handle, creating it on first use.
func (c *Client) Realtime() *Realtime {
	if c.rt == nil {
		c.rt = &Realtime{client: c}
	}
	return c.rt
}

// OnMessage registers a handler for pushed messages, including the sender's
// own echo frames.
func (rt *Realtime) OnMessage(h func(Message)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.onMessage = append(rt.onMessage, h)
}

// OnError registers a handler for server error frames.
func (rt *Realtime) OnError(h func(string)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.onError = append(rt.onError, h)
}

// OnDisconnected registers a handler invoked once when the read loop exits.
func (rt *Realtime) OnDisconnected(h func(error)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.onDisconnected = append(rt.onDisconnected, h)
}

// Connect dials the gateway, sends the auth frame, and waits for the
// auth_ok acknowledgment before starting the read loop. There is no replay
// on reconnect: callers resume via REST polling and re-Connect.
func (rt *Realtime) Connect(ctx context.Context) error {
	if rt.client.Token == "" {
		return errors.New("login before connecting realtime")
	}

	conn, _, err := websocket.Dial(ctx, rt.wsURL(), nil)
	if err != nil {
		return err
	}

	if err := wsjson.Write(ctx, conn, frame{Type: "auth", Token: rt.client.Token}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "auth write failed")
		return err
	}

	// A push for this user can land in the ack window; hold on to any
	// early messages and replay them once the read loop is running.
	var ack frame
	var early []Message
	for {
		if err := wsjson.Read(ctx, conn, &ack); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "auth read failed")
			return err
		}
		if ack.Type == "message" && ack.Message != nil {
			early = append(early, *ack.Message)
			continue
		}
		break
	}
	if ack.Type != "auth_ok" {
		_ = conn.Close(websocket.StatusPolicyViolation, "auth rejected")
		return fmt.Errorf("authentication rejected: %s", ack.Error)
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.connected = true
	rt.userID = ack.UserID
	msgHandlers := append([]func(Message){}, rt.onMessage...)
	rt.mu.Unlock()

	for _, m := range early {
		for _, h := range msgHandlers {
			h(m)
		}
	}

	go rt.readLoop(conn)
	return nil
}

// Connected reports whether the socket is live.
func (rt *Realtime) Connected() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.connected
}

// UserID returns the id the gateway bound to this connection.
func (rt *Realtime) UserID() uint {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.userID
}

// SendMessage sends a message frame over the socket. The persisted message
// comes back asynchronously as an echo push.
func (rt *Realtime) SendMessage(ctx context.Context, receiverID uint, content string) error {
	conn := rt.liveConn()
	if conn == nil {
		return errors.New("realtime not connected")
	}
	return wsjson.Write(ctx, conn, frame{Type: "message", ReceiverID: receiverID, Content: content})
}

// SendReadReceipt signals that a message has been seen.
func (rt *Realtime) SendReadReceipt(ctx context.Context, messageID uint) error {
	conn := rt.liveConn()
	if conn == nil {
		return errors.New("realtime not connected")
	}
	return wsjson.Write(ctx, conn, frame{Type: "read_receipt", MessageID: messageID})
}

// Close shuts the socket down. The client degrades to REST silently.
func (rt *Realtime) Close() error {
	rt.mu.Lock()
	conn := rt.conn
	rt.conn = nil
	rt.connected = false
	rt.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

func (rt *Realtime) liveConn() *websocket.Conn {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if !rt.connected {
		return nil
	}
	return rt.conn
}

func (rt *Realtime) readLoop(conn *websocket.Conn) {
	var loopErr error
	for {
		var f frame
		if err := wsjson.Read(context.Background(), conn, &f); err != nil {
			loopErr = err
			break
		}

		rt.mu.RLock()
		msgHandlers := append([]func(Message){}, rt.onMessage...)
		errHandlers := append([]func(string){}, rt.onError...)
		rt.mu.RUnlock()

		switch f.Type {
		case "message":
			if f.Message != nil {
				for _, h := range msgHandlers {
					h(*f.Message)
				}
			}
		case "error":
			for _, h := range errHandlers {
				h(f.Error)
			}
		}
	}

	rt.mu.Lock()
	wasConnected := rt.connected
	rt.connected = false
	rt.conn = nil
	discHandlers := append([]func(error){}, rt.onDisconnected...)
	rt.mu.Unlock()

	if wasConnected {
		for _, h := range discHandlers {
			h(loopErr)
		}
	}
}

func (rt *Realtime) wsURL() string {
	u := rt.client.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
