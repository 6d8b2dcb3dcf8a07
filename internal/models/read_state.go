package models

import (
	"time"

	"github.com/google/uuid"
)

// DirectReadCursor marks every message from PeerID created at or before
// ReadAt as read for OwnerID. ReadAt never moves backwards.
type DirectReadCursor struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	PeerID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"peer_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupReadEntry is one member's acknowledgement slot for one group
// message. Rows exist only for members present when the message was sent.
type GroupReadEntry struct {
	GroupID   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"group_id"`
	MemberID  uuid.UUID  `gorm:"type:uuid;primaryKey;index:idx_group_read_member" json:"member_id"`
	MessageID uint       `gorm:"primaryKey" json:"message_id"`
	IsRead    bool       `gorm:"not null;default:false;index:idx_group_read_member" json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type ReadStateKind string

const (
	ReadStateCursor          ReadStateKind = "cursor"
	ReadStatePerMessageFlags ReadStateKind = "per_message_flags"
)

// ReadState is the caller's read position in one conversation. Direct
// conversations use Cursor, groups use Unread (ids still flagged unread).
type ReadState struct {
	Kind   ReadStateKind `json:"kind"`
	Cursor *time.Time    `json:"cursor,omitempty"`
	Unread []uint        `json:"unread,omitempty"`
}

func CursorState(at *time.Time) ReadState {
	return ReadState{Kind: ReadStateCursor, Cursor: at}
}

func FlagState(unread []uint) ReadState {
	return ReadState{Kind: ReadStatePerMessageFlags, Unread: unread}
}
