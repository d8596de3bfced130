// Package client is the Go SDK for the StudyMate messaging backend. It
// wraps the REST surface, the realtime socket, and the cache that reconciles
// the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message mirrors the server's message resource.
type Message struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	ReceiverID     uint      `json:"receiver_id"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	SentAt         time.Time `json:"sent_at"`
}

// Conversation mirrors the server's conversation resource.
type Conversation struct {
	ID               uint      `json:"id"`
	ParticipantOneID uint      `json:"participant_one_id"`
	ParticipantTwoID uint      `json:"participant_two_id"`
	LastMessageAt    time.Time `json:"last_message_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// User is the public profile slice the server exposes.
type User struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ProfileImage string `json:"profile_image"`
	Online       bool   `json:"online"`
}

// ConversationSummary is one inbox row.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	OtherUser    User         `json:"other_user"`
	LastMessage  *Message     `json:"last_message"`
	UnreadCount  int64        `json:"unread_count"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to one StudyMate backend on behalf of one user.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	rt *Realtime
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates with email and password and stores the access token
// for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return err
	}
	c.Token = out.AccessToken
	return nil
}

// SendMessageREST creates a message over plain HTTP, the fallback path for
// clients without a live socket.
func (c *Client) SendMessageREST(ctx context.Context, receiverID uint, content string) (*Message, error) {
	var out struct {
		Data Message `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/messages",
		map[string]interface{}{"receiver_id": receiverID, "content": content}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Send tries the live socket first and falls back to REST on any socket
// failure. The socket path returns a nil message; the persisted message
// arrives asynchronously as the sender's own echo frame.
func (c *Client) Send(ctx context.Context, receiverID uint, content string) (*Message, error) {
	if rt := c.rt; rt != nil && rt.Connected() {
		if err := rt.SendMessage(ctx, receiverID, content); err == nil {
			return nil, nil
		}
	}
	return c.SendMessageREST(ctx, receiverID, content)
}

// Conversations fetches the caller's inbox.
func (c *Client) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	var out struct {
		Data []ConversationSummary `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Messages fetches the full ordered message list of a conversation. This is
// the authoritative list the sync layer reconciles against.
func (c *Client) Messages(ctx context.Context, conversationID uint) ([]Message, error) {
	var out struct {
		Data []Message `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AdvanceStatus moves a message's delivery status forward.
func (c *Client) AdvanceStatus(ctx context.Context, messageID uint, status string) (*Message, error) {
	var out struct {
		Data Message `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/messages/%d/status", messageID)
	err := c.doJSON(ctx, http.MethodPatch, path, map[string]string{"status": status}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// MarkRead advances a message to read. Prefers the socket receipt when
// connected, falling back to REST.
func (c *Client) MarkRead(ctx context.Context, messageID uint) error {
	if rt := c.rt; rt != nil && rt.Connected() {
		if err := rt.SendReadReceipt(ctx, messageID); err == nil {
			return nil
		}
	}
	_, err := c.AdvanceStatus(ctx, messageID, "read")
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
