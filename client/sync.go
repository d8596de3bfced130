package client

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Merge unions two message lists by id and returns them sorted by sent time
// (id as tiebreak). Socket pushes and REST polls are equivalent sources of
// truth, so the same message id may arrive on both paths; the incoming copy
// wins because it carries the newer delivery status. Pure function.
func Merge(cached, incoming []Message) []Message {
	byID := make(map[uint]Message, len(cached)+len(incoming))
	for _, m := range cached {
		byID[m.ID] = m
	}
	for _, m := range incoming {
		byID[m.ID] = m
	}

	out := make([]Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ConversationView is the local ordered cache of one open conversation. It
// applies socket pushes immediately and reconciles against the server's
// authoritative list on a poll interval, deduplicating by message id.
type ConversationView struct {
	client         *Client
	conversationID uint
	userID         uint

	mu       sync.Mutex
	messages []Message

	onChange     func([]Message)
	onInvalidate func()
}

// NewConversationView builds a view for the given conversation. userID is
// the current user; any event touching them invalidates the conversation
// list (unread counts, ordering).
func (c *Client) NewConversationView(conversationID, userID uint) *ConversationView {
	return &ConversationView{
		client:         c,
		conversationID: conversationID,
		userID:         userID,
	}
}

// OnChange registers the callback fired with the full ordered list after
// every change.
func (v *ConversationView) OnChange(h func([]Message)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = h
}

// OnInvalidateConversations registers the callback fired when the inbox
// should be re-fetched.
func (v *ConversationView) OnInvalidateConversations(h func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onInvalidate = h
}

// Apply folds one pushed message into the cache. Duplicates (the sender's
// own echo, or a message a poll already delivered) are suppressed by id.
func (v *ConversationView) Apply(msg Message) {
	v.mu.Lock()
	var changed []Message
	var onChange func([]Message)
	if msg.ConversationID == v.conversationID {
		v.messages = Merge(v.messages, []Message{msg})
		changed = append([]Message{}, v.messages...)
		onChange = v.onChange
	}
	onInvalidate := v.onInvalidate
	touchesUser := msg.SenderID == v.userID || msg.ReceiverID == v.userID
	v.mu.Unlock()

	if onChange != nil {
		onChange(changed)
	}
	if touchesUser && onInvalidate != nil {
		onInvalidate()
	}
}

// Refresh fetches the authoritative list and reconciles the cache.
func (v *ConversationView) Refresh(ctx context.Context) error {
	msgs, err := v.client.Messages(ctx, v.conversationID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.messages = Merge(v.messages, msgs)
	changed := append([]Message{}, v.messages...)
	onChange := v.onChange
	v.mu.Unlock()

	if onChange != nil {
		onChange(changed)
	}
	return nil
}

// Poll refreshes on the given interval until ctx is done. Poll errors are
// transient by definition; the next tick retries.
func (v *ConversationView) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = v.Refresh(ctx)
		}
	}
}

// Snapshot returns a copy of the current ordered cache.
func (v *ConversationView) Snapshot() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Message{}, v.messages...)
}
