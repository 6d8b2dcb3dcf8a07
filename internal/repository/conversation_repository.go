package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Ensure inserts conv unless a row with its id already exists.
func (r *ConversationRepository) Ensure(ctx context.Context, conv *models.Conversation) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conv).Error
	return wrap(err, "repo.Conversation.Ensure")
}

func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "repo.Conversation.FindByID")
	}
	return &conv, nil
}

// LockByID takes the conversation row lock. Sends, deletes and membership
// changes of one conversation serialize on it.
func (r *ConversationRepository) LockByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, wrap(err, "repo.Conversation.LockByID")
	}
	return &conv, nil
}

func (r *ConversationRepository) Advance(ctx context.Context, id string, seq int64, lastMessageAt *time.Time) error {
	updates := map[string]interface{}{
		"last_seq":   seq,
		"updated_at": gorm.Expr("NOW()"),
	}
	if lastMessageAt != nil {
		updates["last_message_at"] = *lastMessageAt
	}
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
	return wrap(err, "repo.Conversation.Advance")
}

// ConversationSummaryRow is one conversation of a user with its last visible
// message and the user's unread count.
type ConversationSummaryRow struct {
	ConversationID string     `gorm:"column:conversation_id"`
	Kind           string     `gorm:"column:kind"`
	PeerID         *uuid.UUID `gorm:"column:peer_id"`
	GroupID        *uuid.UUID `gorm:"column:group_id"`
	GroupName      *string    `gorm:"column:group_name"`
	LastActivity   *time.Time `gorm:"column:last_activity"`
	UnreadCount    int64      `gorm:"column:unread_count"`

	MessageID          *uint      `gorm:"column:message_id"`
	MessageSeq         *int64     `gorm:"column:message_seq"`
	MessageClientID    *string    `gorm:"column:message_client_id"`
	MessageSenderID    *uuid.UUID `gorm:"column:message_sender_id"`
	MessageRecipientID *uuid.UUID `gorm:"column:message_recipient_id"`
	MessageBody        *string    `gorm:"column:message_body"`
	MessageCreatedAt   *time.Time `gorm:"column:message_created_at"`
}

// ListSummaries returns every direct conversation of the user that has had a
// message and every group the user belongs to, most recent activity first.
func (r *ConversationRepository) ListSummaries(ctx context.Context, userID uuid.UUID) ([]ConversationSummaryRow, error) {
	// single query: last message via DISTINCT ON, unread via the ledger tables
	query := strings.TrimSpace(`
WITH convs AS (
	SELECT c.id, c.kind, c.user_low, c.user_high, c.group_id, c.last_message_at
	FROM conversations c
	WHERE c.kind = 'direct'
		AND (c.user_low = @user OR c.user_high = @user)
		AND c.last_seq > 0
	UNION ALL
	SELECT c.id, c.kind, c.user_low, c.user_high, c.group_id, c.last_message_at
	FROM conversations c
	JOIN group_members gm ON gm.group_id = c.group_id AND gm.user_id = @user
	WHERE c.kind = 'group'
),
last_msg AS (
	SELECT DISTINCT ON (m.conversation_id)
		m.conversation_id, m.id, m.seq, m.client_id, m.sender_id, m.recipient_id, m.body, m.created_at
	FROM messages m
	JOIN convs ON convs.id = m.conversation_id
	WHERE m.deleted_at IS NULL
	ORDER BY m.conversation_id, m.seq DESC
)
SELECT
	convs.id AS conversation_id,
	convs.kind AS kind,
	CASE WHEN convs.kind = 'direct' THEN
		CASE WHEN convs.user_low = @user THEN convs.user_high ELSE convs.user_low END
	END AS peer_id,
	convs.group_id AS group_id,
	g.name AS group_name,
	convs.last_message_at AS last_activity,
	lm.id AS message_id,
	lm.seq AS message_seq,
	lm.client_id AS message_client_id,
	lm.sender_id AS message_sender_id,
	lm.recipient_id AS message_recipient_id,
	lm.body AS message_body,
	lm.created_at AS message_created_at,
	CASE WHEN convs.kind = 'direct' THEN (
		SELECT COUNT(*) FROM messages dm
		LEFT JOIN direct_read_cursors drc ON drc.owner_id = @user AND drc.peer_id = dm.sender_id
		WHERE dm.conversation_id = convs.id
			AND dm.sender_id <> @user
			AND dm.deleted_at IS NULL
			AND (drc.read_at IS NULL OR dm.created_at > drc.read_at)
	) ELSE (
		SELECT COUNT(*) FROM group_read_entries gre
		JOIN messages gmsg ON gmsg.id = gre.message_id AND gmsg.deleted_at IS NULL
		WHERE gre.group_id = convs.group_id
			AND gre.member_id = @user
			AND gre.is_read = false
	) END AS unread_count
FROM convs
LEFT JOIN last_msg lm ON lm.conversation_id = convs.id
LEFT JOIN groups g ON g.id = convs.group_id
ORDER BY convs.last_message_at DESC NULLS LAST, convs.id
`)

	var rows []ConversationSummaryRow
	err := r.db.WithContext(ctx).Raw(query, map[string]interface{}{"user": userID}).Scan(&rows).Error
	return rows, wrap(err, "repo.Conversation.ListSummaries")
}
