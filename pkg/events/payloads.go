package events

import (
	"time"

	"github.com/google/uuid"
)

type MessageView struct {
	ID             uint       `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Seq            int64      `json:"seq"`
	ClientID       string     `json:"client_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	RecipientID    *uuid.UUID `json:"recipient_id,omitempty"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MessageCreated is published on the conversation topic. Unread holds the
// absolute unread count of every recipient after the send.
type MessageCreated struct {
	Message MessageView          `json:"message"`
	Unread  map[uuid.UUID]int64 `json:"unread"`
}

type MessageDeleted struct {
	ConversationID string `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
}

type FriendshipChanged struct {
	UserLow     uuid.UUID `json:"user_low"`
	UserHigh    uuid.UUID `json:"user_high"`
	Status      string    `json:"status"` // none, pending or accepted
	RequesterID uuid.UUID `json:"requester_id,omitempty"`
}

type PresenceChanged struct {
	UserID         uuid.UUID  `json:"user_id"`
	Liveness       string     `json:"liveness"`
	DeclaredStatus string     `json:"declared_status"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
}

type RosterChanged struct {
	GroupID uuid.UUID   `json:"group_id"`
	Members []uuid.UUID `json:"members"`
}

// ReadChanged carries the owner's unread count after a read-state change.
type ReadChanged struct {
	ConversationID string     `json:"conversation_id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Unread         int64      `json:"unread"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

type FriendRequestNotice struct {
	From uuid.UUID `json:"from"`
}

type MessageNotice struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      uint      `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Unread         int64     `json:"unread"`
}

// ConversationSnapshot is the resync state of a conversation topic.
type ConversationSnapshot struct {
	ConversationID string        `json:"conversation_id"`
	LastSeq        int64         `json:"last_seq"`
	Unread         int64         `json:"unread"`
	Messages       []MessageView `json:"messages"`
}

type ConversationSummary struct {
	ConversationID string       `json:"conversation_id"`
	Kind           string       `json:"kind"`
	PeerID         *uuid.UUID   `json:"peer_id,omitempty"`
	GroupID        *uuid.UUID   `json:"group_id,omitempty"`
	Title          string       `json:"title,omitempty"`
	LastMessage    *MessageView `json:"last_message,omitempty"`
	LastActivity   *time.Time   `json:"last_activity,omitempty"`
	Unread         int64        `json:"unread"`
}

// InboxSnapshot is the resync state of an inbox topic.
type InboxSnapshot struct {
	Conversations []ConversationSummary `json:"conversations"`
}
