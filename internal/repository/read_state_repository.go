package repository

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReadStateRepository struct {
	db *gorm.DB
}

func NewReadStateRepository(db *gorm.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

func (r *ReadStateRepository) GetCursor(ctx context.Context, ownerID, peerID uuid.UUID) (*models.DirectReadCursor, error) {
	var cursor models.DirectReadCursor
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND peer_id = ?", ownerID, peerID).
		First(&cursor).Error
	if err != nil {
		return nil, wrap(err, "repo.ReadState.GetCursor")
	}
	return &cursor, nil
}

// AdvanceCursor moves the cursor to at unless it is already later, and
// returns the stored value.
func (r *ReadStateRepository) AdvanceCursor(ctx context.Context, ownerID, peerID uuid.UUID, at time.Time) (time.Time, error) {
	var cursor models.DirectReadCursor
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO direct_read_cursors (owner_id, peer_id, read_at, updated_at)
		VALUES (?, ?, ?, NOW())
		ON CONFLICT (owner_id, peer_id) DO UPDATE
		SET read_at = GREATEST(direct_read_cursors.read_at, EXCLUDED.read_at),
			updated_at = NOW()
		RETURNING owner_id, peer_id, read_at, updated_at
	`, ownerID, peerID, at).Scan(&cursor).Error
	if err != nil {
		return time.Time{}, wrap(err, "repo.ReadState.AdvanceCursor")
	}
	return cursor.ReadAt, nil
}

// DeleteCursors removes both directions of the pair.
func (r *ReadStateRepository) DeleteCursors(ctx context.Context, a, b uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("(owner_id = ? AND peer_id = ?) OR (owner_id = ? AND peer_id = ?)", a, b, b, a).
		Delete(&models.DirectReadCursor{}).Error
	return wrap(err, "repo.ReadState.DeleteCursors")
}

func (r *ReadStateRepository) CountDirectUnread(ctx context.Context, conversationID string, peerID uuid.UUID, after *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id = ?", conversationID, peerID)
	if after != nil {
		q = q.Where("created_at > ?", *after)
	}
	var count int64
	err := q.Count(&count).Error
	return count, wrap(err, "repo.ReadState.CountDirectUnread")
}

// CreateGroupEntries writes one unread entry per member for messageID. Any
// failure leaves the caller's transaction unusable, so it must roll back.
func (r *ReadStateRepository) CreateGroupEntries(ctx context.Context, groupID uuid.UUID, messageID uint, members []uuid.UUID) error {
	if len(members) == 0 {
		return nil
	}
	entries := make([]models.GroupReadEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, models.GroupReadEntry{
			GroupID:   groupID,
			MemberID:  m,
			MessageID: messageID,
		})
	}
	err := r.db.WithContext(ctx).CreateInBatches(&entries, 500).Error
	return wrap(err, "repo.ReadState.CreateGroupEntries")
}

func (r *ReadStateRepository) unreadEntries(ctx context.Context, groupID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("group_read_entries AS gre").
		Joins("JOIN messages m ON m.id = gre.message_id AND m.deleted_at IS NULL").
		Where("gre.group_id = ? AND gre.is_read = false", groupID)
}

func (r *ReadStateRepository) CountGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.unreadEntries(ctx, groupID).
		Where("gre.member_id = ?", memberID).
		Count(&count).Error
	return count, wrap(err, "repo.ReadState.CountGroupUnread")
}

// CountGroupUnreadByMember returns a count for every id in members,
// including zeros.
func (r *ReadStateRepository) CountGroupUnreadByMember(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(members))
	if len(members) == 0 {
		return out, nil
	}

	var rows []struct {
		MemberID uuid.UUID `gorm:"column:member_id"`
		Unread   int64     `gorm:"column:unread"`
	}
	err := r.unreadEntries(ctx, groupID).
		Select("gre.member_id AS member_id, COUNT(*) AS unread").
		Where("gre.member_id IN ?", members).
		Group("gre.member_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "repo.ReadState.CountGroupUnreadByMember")
	}

	for _, m := range members {
		out[m] = 0
	}
	for _, row := range rows {
		out[row.MemberID] = row.Unread
	}
	return out, nil
}

func (r *ReadStateRepository) ListGroupUnread(ctx context.Context, groupID, memberID uuid.UUID) ([]uint, error) {
	var ids []uint
	err := r.unreadEntries(ctx, groupID).
		Where("gre.member_id = ?", memberID).
		Order("gre.message_id").
		Pluck("gre.message_id", &ids).Error
	return ids, wrap(err, "repo.ReadState.ListGroupUnread")
}

// MarkGroupRead flips every unread entry of the member in one statement.
func (r *ReadStateRepository) MarkGroupRead(ctx context.Context, groupID, memberID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.GroupReadEntry{}).
		Where("group_id = ? AND member_id = ? AND is_read = false", groupID, memberID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	if res.Error != nil {
		return 0, wrap(res.Error, "repo.ReadState.MarkGroupRead")
	}
	return res.RowsAffected, nil
}

func (r *ReadStateRepository) DeleteGroupEntriesForMember(ctx context.Context, groupID, memberID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		Delete(&models.GroupReadEntry{}).Error
	return wrap(err, "repo.ReadState.DeleteGroupEntriesForMember")
}
