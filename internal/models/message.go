package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is immutable once created apart from soft deletion. Seq orders it
// within its conversation.
type Message struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	ConversationID string         `gorm:"size:100;not null;uniqueIndex:idx_conversation_seq" json:"conversation_id"`
	Seq            int64          `gorm:"not null;uniqueIndex:idx_conversation_seq" json:"seq"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Client-side tracking
	ClientID string `gorm:"type:varchar(64);uniqueIndex:idx_client_sender;not null" json:"client_id"`

	SenderID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_client_sender;index" json:"sender_id"`
	RecipientID *uuid.UUID `gorm:"type:uuid;index" json:"recipient_id"` // null for group messages
	GroupID     *uuid.UUID `gorm:"type:uuid;index" json:"group_id"`     // null for direct messages

	Body string `gorm:"type:text;not null" json:"body"`
}
