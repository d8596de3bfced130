package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Salman7o/StudyMate-sub001/client"
)

type wireFrame struct {
	Type    string          `json:"type"`
	Message *client.Message `json:"message,omitempty"`
	Token   string          `json:"token,omitempty"`
	UserID  uint            `json:"userId,omitempty"`
}

// TestConnectToleratesPushBeforeAck pins down the handshake window: a push
// fanned out the instant the connection registers may reach the wire ahead
// of the ack, and Connect must neither misread it as the ack nor drop it.
func TestConnectToleratesPushBeforeAck(t *testing.T) {
	early := client.Message{ID: 41, ConversationID: 7, SenderID: 1, ReceiverID: 2, Content: "early bird", Status: "sent", SentAt: time.Now()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		var auth wireFrame
		require.NoError(t, wsjson.Read(ctx, conn, &auth))
		require.Equal(t, "auth", auth.Type)

		require.NoError(t, wsjson.Write(ctx, conn, wireFrame{Type: "message", Message: &early}))
		require.NoError(t, wsjson.Write(ctx, conn, wireFrame{Type: "auth_ok", UserID: 2}))

		// Hold the connection open until the client hangs up.
		var discard wireFrame
		_ = wsjson.Read(ctx, conn, &discard)
	}))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	c.Token = "test-token"

	received := make(chan client.Message, 1)
	rt := c.Realtime()
	rt.OnMessage(func(m client.Message) { received <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))
	defer rt.Close()

	require.True(t, rt.Connected())
	require.Equal(t, uint(2), rt.UserID())

	select {
	case m := <-received:
		require.Equal(t, early.ID, m.ID)
		require.Equal(t, "early bird", m.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("early push was dropped")
	}
}
