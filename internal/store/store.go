// Package store owns persisted conversations and messages. It is the single
// write path shared by the realtime gateway and the REST handlers.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Salman7o/StudyMate-sub001/internal/models"
)

type MessageStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// GetOrCreateConversation returns the conversation between the unordered
// pair (a, b), creating it on first contact. Participants are normalized to
// canonical order before insert; a duplicate-key violation from a concurrent
// creator is resolved by re-reading the winner's row, so the call is
// idempotent under concurrency.
func (s *MessageStore) GetOrCreateConversation(ctx context.Context, a, b uint) (*models.Conversation, error) {
	if a == 0 || b == 0 {
		return nil, fmt.Errorf("%w: participant id must be nonzero", ErrValidation)
	}
	if a == b {
		return nil, fmt.Errorf("%w: cannot open a conversation with yourself", ErrValidation)
	}

	if conv, err := s.findConversation(ctx, a, b); err == nil {
		return conv, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// First contact: both participants must exist before a row is created,
	// or a typo'd receiver id would poison the sender's inbox.
	for _, id := range []uint{a, b} {
		if _, err := s.GetUser(ctx, id); err != nil {
			return nil, err
		}
	}

	one, two := a, b
	if one > two {
		one, two = two, one
	}
	conv := models.Conversation{
		ParticipantOneID: one,
		ParticipantTwoID: two,
		LastMessageAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		if isDuplicateKey(err) {
			return s.findConversation(ctx, a, b)
		}
		return nil, err
	}
	return &conv, nil
}

func (s *MessageStore) findConversation(ctx context.Context, a, b uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("(participant_one_id = ? AND participant_two_id = ?) OR (participant_one_id = ? AND participant_two_id = ?)",
			a, b, b, a).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation looks up a conversation by id.
func (s *MessageStore) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &conv, nil
}

// AppendMessage persists a new message with status "sent" and touches the
// conversation's last-message timestamp. Empty or whitespace-only content is
// rejected and nothing is written.
func (s *MessageStore) AppendMessage(ctx context.Context, conversationID, senderID, receiverID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrValidation)
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Status:         models.StatusSent,
		SentAt:         time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: conversation %d", ErrNotFound, conversationID)
			}
			return err
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&conv).Update("last_message_at", msg.SentAt).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns all messages in a conversation ascending by sent
// time. Two writers may interleave at the store, so sent time (with id as
// tiebreak) is the only order readers may rely on, not insertion order.
func (s *MessageStore) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at asc").Order("id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage looks up a message by id.
func (s *MessageStore) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &msg, nil
}

// AdvanceStatus moves a message's delivery status forward. The progression
// is strictly monotonic: a transition that does not move later in the
// sent -> delivered -> read order fails and leaves the row untouched. The
// rank check lives in the UPDATE itself, so two concurrent advances (a
// socket receipt racing a REST PATCH) cannot regress each other.
func (s *MessageStore) AdvanceStatus(ctx context.Context, messageID uint, newStatus string) (*models.Message, error) {
	rank := models.StatusRank(newStatus)
	if rank == 0 {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	below := make([]string, 0, len(models.Statuses))
	for _, st := range models.Statuses {
		if models.StatusRank(st) < rank {
			below = append(below, st)
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status IN ?", messageID, below).
		Update("status", newStatus)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		msg, err := s.GetMessage(ctx, messageID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, newStatus)
	}
	return s.GetMessage(ctx, messageID)
}

// ListConversationsForUser returns the user's inbox, newest activity first.
// The online flag on the counterpart is left false; the handler layer fills
// it from the presence registry.
func (s *MessageStore) ListConversationsForUser(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_one_id = ? OR participant_two_id = ?", userID, userID).
		Order("last_message_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		otherID := conv.ParticipantOneID
		if otherID == userID {
			otherID = conv.ParticipantTwoID
		}

		other, err := s.GetUser(ctx, otherID)
		if errors.Is(err, ErrNotFound) {
			// A vanished counterpart must not take the whole inbox down.
			continue
		}
		if err != nil {
			return nil, err
		}

		var last models.Message
		var lastPtr *models.Message
		err = s.db.WithContext(ctx).
			Where("conversation_id = ?", conv.ID).
			Order("sent_at desc").Order("id desc").
			First(&last).Error
		if err == nil {
			lastPtr = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		var unread int64
		err = s.db.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND status <> ?", conv.ID, userID, models.StatusRead).
			Count(&unread).Error
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.ConversationSummary{
			Conversation: conv,
			OtherUser:    other.Public(false),
			LastMessage:  lastPtr,
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

// GetUser resolves a user id against the user directory.
func (s *MessageStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}
