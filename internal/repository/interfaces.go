package repository

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
)

// FriendshipRepositoryInterface defines the contract for friendship operations.
// Pairs are unordered: Find(a, b) and Find(b, a) return the same row.
type FriendshipRepositoryInterface interface {
	Find(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error)
	FindForUpdate(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error)
	Create(ctx context.Context, f *models.Friendship) error
	Accept(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status models.FriendshipStatus) ([]models.Friendship, error)
}

// ConversationRepositoryInterface defines the contract for conversation rows,
// which serialize sends and membership changes.
type ConversationRepositoryInterface interface {
	Ensure(ctx context.Context, conv *models.Conversation) error
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	LockByID(ctx context.Context, id string) (*models.Conversation, error)
	Advance(ctx context.Context, id string, seq int64, lastMessageAt *time.Time) error
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]ConversationSummaryRow, error)
}

// MessageRepositoryInterface defines the contract for message operations
type MessageRepositoryInterface interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (*models.Message, error)
	FindByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*models.Message, error)
	ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error)
	SoftDelete(ctx context.Context, id uint) error
}

// GroupRepositoryInterface defines the contract for group repository operations
type GroupRepositoryInterface interface {
	Create(ctx context.Context, group *models.Group) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	AddMember(ctx context.Context, groupID, userID uuid.UUID, role models.GroupRole) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	GetMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error)
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error)
}

// ReadStateRepositoryInterface defines the contract for the read-status ledger:
// direct read cursors and per-message group entries.
type ReadStateRepositoryInterface interface {
	GetCursor(ctx context.Context, ownerID, peerID uuid.UUID) (*models.DirectReadCursor, error)
	AdvanceCursor(ctx context.Context, ownerID, peerID uuid.UUID, at time.Time) (time.Time, error)
	DeleteCursors(ctx context.Context, a, b uuid.UUID) error
	CountDirectUnread(ctx context.Context, conversationID string, peerID uuid.UUID, after *time.Time) (int64, error)

	CreateGroupEntries(ctx context.Context, groupID uuid.UUID, messageID uint, members []uuid.UUID) error
	CountGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) (int64, error)
	CountGroupUnreadByMember(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) (map[uuid.UUID]int64, error)
	ListGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) ([]uint, error)
	MarkGroupRead(ctx context.Context, groupID, memberID uuid.UUID, at time.Time) (int64, error)
	DeleteGroupEntriesForMember(ctx context.Context, groupID, memberID uuid.UUID) error
}

// PresenceRepositoryInterface defines the contract for presence records.
// Touch never moves LastSeen backwards.
type PresenceRepositoryInterface interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.PresenceRecord, error)
	Touch(ctx context.Context, userID uuid.UUID, at time.Time) (*models.PresenceRecord, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status models.DeclaredStatus, at time.Time) (*models.PresenceRecord, error)
	ListExpired(ctx context.Context, from, to time.Time) ([]models.PresenceRecord, error)
}

// SequenceRepositoryInterface numbers fan-out events per topic inside the
// transaction that produces them.
type SequenceRepositoryInterface interface {
	Next(ctx context.Context, topic string) (int64, error)
	Current(ctx context.Context, topic string) (int64, error)
}

// Store groups the repositories. Repositories returned from the Store passed
// to WithTx's callback run inside that transaction.
type Store interface {
	Friendships() FriendshipRepositoryInterface
	Conversations() ConversationRepositoryInterface
	Messages() MessageRepositoryInterface
	Groups() GroupRepositoryInterface
	ReadStates() ReadStateRepositoryInterface
	Presence() PresenceRepositoryInterface
	Sequences() SequenceRepositoryInterface
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
