package models

import (
	"time"

	"github.com/google/uuid"
)

// LastMessage summarizes the most recent message of a conversation.
type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  uuid.UUID `json:"senderId"`
}

// Conversation is the derived view of all messages between a user and one
// counterpart. It is computed on demand and never persisted; ID is the
// counterpart's user id. User is nil when the counterpart's account can no
// longer be resolved.
type Conversation struct {
	ID          uuid.UUID    `json:"id"`
	User        *UserSummary `json:"user"`
	LastMessage LastMessage  `json:"lastMessage"`
	UnreadCount int          `json:"unreadCount"`
	Messages    []*Message   `json:"messages"`
}
