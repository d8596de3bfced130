package models

import "time"

// Roles a StudyMate account can hold.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// Message delivery statuses, in advancement order.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Statuses lists the delivery statuses in advancement order.
var Statuses = []string{StatusSent, StatusDelivered, StatusRead}

// StatusRank maps a delivery status to its position in the
// sent -> delivered -> read progression. Unknown statuses map to 0.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:190;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:20;not null;default:student" json:"role"`
	ProfileImage string    `gorm:"size:255" json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conversation pairs two users. Participants are stored in canonical order
// (ParticipantOneID < ParticipantTwoID) under a composite unique index, so
// two first-time senders racing on the same pair cannot create duplicates.
type Conversation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ParticipantOneID uint      `gorm:"not null;uniqueIndex:idx_conv_pair" json:"participant_one_id"`
	ParticipantTwoID uint      `gorm:"not null;uniqueIndex:idx_conv_pair" json:"participant_two_id"`
	LastMessageAt    time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt        time.Time `json:"created_at"`
}

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	SenderID       uint      `gorm:"index;not null" json:"sender_id"`
	ReceiverID     uint      `gorm:"index;not null" json:"receiver_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Status         string    `gorm:"size:20;not null;default:sent" json:"status"`
	SentAt         time.Time `gorm:"index" json:"sent_at"`
}

// ConversationSummary is one inbox row: the conversation, the counterpart's
// public profile, the newest message, and how many messages are still unread.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	OtherUser    PublicUser   `json:"other_user"`
	LastMessage  *Message     `json:"last_message"`
	UnreadCount  int64        `json:"unread_count"`
}

// PublicUser is the profile slice exposed to other users.
type PublicUser struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ProfileImage string `json:"profile_image"`
	Online       bool   `json:"online"`
}

// Public strips a User down to the fields other users may see. Online comes
// from the presence registry, which the caller consults.
func (u User) Public(online bool) PublicUser {
	return PublicUser{
		ID:           u.ID,
		Name:         u.Name,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
		Online:       online,
	}
}
