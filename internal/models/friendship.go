package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

// FriendshipState is the relation as seen from one side of the pair.
type FriendshipState string

const (
	StateNone       FriendshipState = "NONE"
	StatePendingOut FriendshipState = "PENDING_OUT"
	StatePendingIn  FriendshipState = "PENDING_IN"
	StateAccepted   FriendshipState = "ACCEPTED"
)

// Friendship is stored once per unordered pair. UserLow/UserHigh carry the
// unique constraint; RequesterID/RecipientID carry the direction.
type Friendship struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserLow     uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair" json:"user_low"`
	UserHigh    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair" json:"user_high"`
	RequesterID uuid.UUID        `gorm:"type:uuid;not null;index" json:"requester_id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Status      FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// OrderedPair returns a and b sorted by their string form.
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

func NewFriendRequest(from, to uuid.UUID) *Friendship {
	low, high := OrderedPair(from, to)
	return &Friendship{
		UserLow:     low,
		UserHigh:    high,
		RequesterID: from,
		RecipientID: to,
		Status:      FriendshipPending,
	}
}

// StateFor reports the relation from viewer's perspective. A nil
// friendship is StateNone.
func (f *Friendship) StateFor(viewer uuid.UUID) FriendshipState {
	if f == nil {
		return StateNone
	}
	switch f.Status {
	case FriendshipAccepted:
		return StateAccepted
	case FriendshipPending:
		if f.RequesterID == viewer {
			return StatePendingOut
		}
		return StatePendingIn
	}
	return StateNone
}

// Other returns the member of the pair that is not viewer.
func (f *Friendship) Other(viewer uuid.UUID) uuid.UUID {
	if f.UserLow == viewer {
		return f.UserHigh
	}
	return f.UserLow
}
