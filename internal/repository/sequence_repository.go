package repository

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type SequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next increments topic's counter and returns the new value. The row stays
// locked until the surrounding transaction ends, so writers on one topic
// are numbered in commit order.
func (r *SequenceRepository) Next(ctx context.Context, topic string) (int64, error) {
	var seq int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO topic_sequences (topic, seq)
		VALUES (?, 1)
		ON CONFLICT (topic) DO UPDATE
		SET seq = topic_sequences.seq + 1
		RETURNING seq
	`, topic).Scan(&seq).Error
	if err != nil {
		return 0, wrap(err, "repo.Sequences.Next")
	}
	return seq, nil
}

// Current is the last committed sequence of topic, 0 before the first.
func (r *SequenceRepository) Current(ctx context.Context, topic string) (int64, error) {
	var row models.TopicSequence
	err := r.db.WithContext(ctx).First(&row, "topic = ?", topic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err, "repo.Sequences.Current")
	}
	return row.Seq, nil
}
