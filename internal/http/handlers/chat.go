package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Salman7o/StudyMate-sub001/internal/http/middleware"
	"github.com/Salman7o/StudyMate-sub001/internal/store"
	"github.com/Salman7o/StudyMate-sub001/internal/ws"
)

type ChatHandler struct {
	Store *store.MessageStore
	Hub   *ws.Hub
}

type sendMessageReq struct {
	ReceiverID uint   `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// SendMessage is the REST fallback for clients without a live socket. It
// writes through the same store as the gateway but never pushes live; the
// receiver picks the message up on its next poll.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	conv, err := h.Store.GetOrCreateConversation(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	msg, err := h.Store.AppendMessage(c.Request.Context(), conv.ID, userID, req.ReceiverID, req.Content)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := middleware.MustUserID(c)

	summaries, err := h.Store.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	// Presence is transient per-process state; only the hub knows it.
	for i := range summaries {
		summaries[i].OtherUser.Online = h.Hub.IsOnline(summaries[i].OtherUser.ID)
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID := middleware.MustUserID(c)

	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.Store.GetConversation(c.Request.Context(), convID)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	if conv.ParticipantOneID != userID && conv.ParticipantTwoID != userID {
		// Hide conversations the caller is not part of.
		c.JSON(http.StatusNotFound, gin.H{"message": "conversation not found"})
		return
	}

	msgs, err := h.Store.ListMessages(c.Request.Context(), convID)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *ChatHandler) UpdateMessageStatus(c *gin.Context) {
	userID := middleware.MustUserID(c)

	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	msg, err := h.Store.GetMessage(c.Request.Context(), msgID)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	if msg.ReceiverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "only the receiver can update message status"})
		return
	}

	updated, err := h.Store.AdvanceStatus(c.Request.Context(), msgID, req.Status)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
		return 0, false
	}
	return uint(id64), true
}

// abortStoreError maps the store taxonomy onto HTTP statuses.
func abortStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
