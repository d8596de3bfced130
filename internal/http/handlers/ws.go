package handlers

import (
	"log"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"

	"github.com/Salman7o/StudyMate-sub001/internal/ws"
)

type WSHandler struct {
	Gateway              *ws.Gateway
	WSInsecureSkipVerify bool
}

// Handle upgrades the request and hands the connection to the gateway.
// Browser websocket clients cannot set an Authorization header, so a token
// may arrive as a query parameter; without one, the gateway waits for an
// auth frame.
func (h *WSHandler) Handle(c *gin.Context) {
	var userID uint
	if tokenStr := c.Query("token"); tokenStr != "" {
		uid, err := ws.ParseUserToken(tokenStr, h.Gateway.JWTSecret)
		if err != nil {
			c.JSON(401, gin.H{"message": "invalid token"})
			return
		}
		userID = uid
	}

	opts := &websocket.AcceptOptions{}
	// Default Accept rejects cross-origin upgrades, which breaks local dev
	// against a separately served frontend. Dev only.
	if h.WSInsecureSkipVerify {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		log.Println("ws: accept failed:", err)
		return
	}

	h.Gateway.HandleConn(c.Request.Context(), conn, userID)
}
