package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Salman7o/StudyMate-sub001/internal/models"
	"github.com/Salman7o/StudyMate-sub001/internal/store"
)

// Client -> server frame types.
const (
	EventAuth        = "auth"
	EventMessage     = "message"
	EventReadReceipt = "read_receipt"
)

// Server -> client frame types.
const (
	EventAuthOK = "auth_ok"
	EventError  = "error"
)

// DefaultAuthGrace bounds how long a fresh connection may sit unauthenticated
// before the gateway closes it.
const DefaultAuthGrace = 10 * time.Second

// Gateway drives one socket connection through its lifecycle:
// connecting -> active -> closed. It authenticates the connection, registers
// it with the hub, routes inbound frames to the message store and fans new
// messages out to the receiver's live connections.
type Gateway struct {
	Hub       *Hub
	Store     *store.MessageStore
	JWTSecret string
	AuthGrace time.Duration
}

// HandleConn owns conn until it closes. If userID is nonzero the connection
// was already authenticated upstream (token query parameter); otherwise the
// first frame must be an auth frame carrying a valid JWT within the grace
// period. The bound user id always comes from the verified token, never from
// a client-declared id.
func (g *Gateway) HandleConn(ctx context.Context, conn *websocket.Conn, userID uint) {
	if userID == 0 {
		var err error
		userID, err = g.awaitAuth(ctx, conn)
		if err != nil {
			log.Println("ws: auth failed:", err)
			_ = conn.Close(websocket.StatusPolicyViolation, "authentication required")
			return
		}
	}

	// Ack before the hub can fan anything out, so auth_ok is always the
	// first frame a client sees. No loops own the conn yet, so a direct
	// write is safe.
	if err := wsjson.Write(ctx, conn, Event{Type: EventAuthOK, UserID: userID}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "ack failed")
		return
	}

	client := g.Hub.Register(userID, conn)
	defer g.Hub.Unregister(client)

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			// client went away (navigation, network drop, logout)
			return
		}
		g.dispatch(ctx, client, ev)
	}
}

func (g *Gateway) awaitAuth(ctx context.Context, conn *websocket.Conn) (uint, error) {
	grace := g.AuthGrace
	if grace == 0 {
		grace = DefaultAuthGrace
	}
	authCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var ev Event
	if err := wsjson.Read(authCtx, conn, &ev); err != nil {
		if errors.Is(authCtx.Err(), context.DeadlineExceeded) {
			return 0, errors.New("auth grace period expired")
		}
		return 0, err
	}
	if ev.Type != EventAuth {
		return 0, errors.New("first frame must be auth")
	}
	userID, err := ParseUserToken(ev.Token, g.JWTSecret)
	if err != nil {
		return 0, err
	}
	// A declared user id is only a consistency check; the token decides.
	if ev.UserID != 0 && ev.UserID != userID {
		return 0, errors.New("declared user id does not match token")
	}
	return userID, nil
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, ev Event) {
	switch ev.Type {
	case EventMessage:
		g.handleMessage(ctx, client, ev)
	case EventReadReceipt:
		// Receipts are best effort; a lost one never blocks messaging.
		if _, err := g.Store.AdvanceStatus(ctx, ev.MessageID, models.StatusRead); err != nil {
			log.Printf("ws: read receipt for message %d: %v", ev.MessageID, err)
		}
	default:
		client.trySend(Event{Type: EventError, Error: "unknown event type"})
	}
}

func (g *Gateway) handleMessage(ctx context.Context, client *Client, ev Event) {
	conv, err := g.Store.GetOrCreateConversation(ctx, client.UserID, ev.ReceiverID)
	if err != nil {
		g.reject(client, err)
		return
	}
	msg, err := g.Store.AppendMessage(ctx, conv.ID, client.UserID, ev.ReceiverID, ev.Content)
	if err != nil {
		g.reject(client, err)
		return
	}

	push := Event{Type: EventMessage, Message: msg}
	// Offline receiver is fine: REST polling is the recovery path.
	g.Hub.SendToUser(ev.ReceiverID, push)
	// Echo to all of the sender's connections so multi-tab senders stay in
	// sync; this also doubles as the delivery acknowledgment.
	g.Hub.SendToUser(client.UserID, push)
}

// reject surfaces a failed send to the originating connection only. The
// gateway never retries; the user resends.
func (g *Gateway) reject(client *Client, err error) {
	log.Printf("ws: send from user %d failed: %v", client.UserID, err)
	client.trySend(Event{Type: EventError, Error: err.Error()})
}

// ParseUserToken verifies an HS256 JWT and extracts the user id claim.
func ParseUserToken(tokenStr, secret string) (uint, error) {
	if tokenStr == "" {
		return 0, errors.New("missing token")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("unexpected claims format")
	}
	uid, ok := claims["user_id"].(float64)
	if !ok || uid <= 0 {
		return 0, errors.New("token has no user_id claim")
	}
	return uint(uid), nil
}
