package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation is the lock and sequence holder for a message stream.
// LastSeq advances by one for every event committed to the conversation.
type Conversation struct {
	ID            string           `gorm:"primaryKey;size:100" json:"id"`
	Kind          ConversationKind `gorm:"type:varchar(10);not null" json:"kind"`
	UserLow       *uuid.UUID       `gorm:"type:uuid;index" json:"user_low,omitempty"`
	UserHigh      *uuid.UUID       `gorm:"type:uuid;index" json:"user_high,omitempty"`
	GroupID       *uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"group_id,omitempty"`
	LastSeq       int64            `gorm:"not null;default:0" json:"last_seq"`
	LastMessageAt *time.Time       `json:"last_message_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func DirectConversationID(a, b uuid.UUID) string {
	low, high := OrderedPair(a, b)
	return fmt.Sprintf("direct:%s:%s", low, high)
}

func GroupConversationID(groupID uuid.UUID) string {
	return "group:" + groupID.String()
}

func NewDirectConversation(a, b uuid.UUID) *Conversation {
	low, high := OrderedPair(a, b)
	return &Conversation{
		ID:       DirectConversationID(a, b),
		Kind:     ConversationDirect,
		UserLow:  &low,
		UserHigh: &high,
	}
}

func NewGroupConversation(groupID uuid.UUID) *Conversation {
	return &Conversation{
		ID:      GroupConversationID(groupID),
		Kind:    ConversationGroup,
		GroupID: &groupID,
	}
}

// Target selects a conversation from the caller's side: a peer for a
// direct conversation or a group. Exactly one of the two is set.
type Target struct {
	PeerID  uuid.UUID `json:"peer_id,omitempty"`
	GroupID uuid.UUID `json:"group_id,omitempty"`
}

func DirectTarget(peer uuid.UUID) Target { return Target{PeerID: peer} }

func GroupTarget(groupID uuid.UUID) Target { return Target{GroupID: groupID} }

func (t Target) IsGroup() bool { return t.GroupID != uuid.Nil }

func (t Target) Valid() bool {
	return (t.PeerID == uuid.Nil) != (t.GroupID == uuid.Nil)
}

// ConversationID resolves the target for actor.
func (t Target) ConversationID(actor uuid.UUID) string {
	if t.IsGroup() {
		return GroupConversationID(t.GroupID)
	}
	return DirectConversationID(actor, t.PeerID)
}

// ParseTarget parses the ":kind/:id" pair used in routes.
func ParseTarget(kind, id string) (Target, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Target{}, fmt.Errorf("invalid id %q: %w", id, err)
	}
	switch ConversationKind(strings.ToLower(kind)) {
	case ConversationDirect:
		return DirectTarget(parsed), nil
	case ConversationGroup:
		return GroupTarget(parsed), nil
	}
	return Target{}, fmt.Errorf("unknown conversation kind %q", kind)
}
