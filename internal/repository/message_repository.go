package repository

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return wrap(r.db.WithContext(ctx).Create(message).Error, "repo.Message.Create")
}

func (r *MessageRepository) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, wrap(err, "repo.Message.FindByID")
	}
	return &message, nil
}

// FindByClientID includes soft-deleted rows so a retried send never creates
// a second message.
func (r *MessageRepository) FindByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Unscoped().
		Where("sender_id = ? AND client_id = ?", senderID, clientID).
		First(&message).Error
	if err != nil {
		return nil, wrap(err, "repo.Message.FindByClientID")
	}
	return &message, nil
}

// ListBefore returns up to limit messages with seq < beforeSeq (all when
// beforeSeq <= 0) in chronological order.
func (r *MessageRepository) ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var messages []models.Message
	if err := q.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, wrap(err, "repo.Message.ListBefore")
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return wrap(res.Error, "repo.Message.SoftDelete")
	}
	if res.RowsAffected == 0 {
		return wrap(ErrNotFound, "repo.Message.SoftDelete")
	}
	return nil
}
