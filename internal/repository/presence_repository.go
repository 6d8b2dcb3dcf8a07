package repository

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*models.PresenceRecord, error) {
	var rec models.PresenceRecord
	if err := r.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error; err != nil {
		return nil, wrap(err, "repo.Presence.Get")
	}
	return &rec, nil
}

// Touch records a heartbeat. last_seen keeps the maximum observed value, so
// heartbeats may arrive in any order.
func (r *PresenceRepository) Touch(ctx context.Context, userID uuid.UUID, at time.Time) (*models.PresenceRecord, error) {
	var rec models.PresenceRecord
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO presence_records (user_id, last_seen, declared_status, updated_at)
		VALUES (?, ?, ?, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET last_seen = GREATEST(presence_records.last_seen, EXCLUDED.last_seen),
			updated_at = NOW()
		RETURNING user_id, last_seen, declared_status, updated_at
	`, userID, at, models.DeclaredOnline).Scan(&rec).Error
	if err != nil {
		return nil, wrap(err, "repo.Presence.Touch")
	}
	return &rec, nil
}

// SetStatus updates declared_status. A missing record is created with
// last_seen = at.
func (r *PresenceRepository) SetStatus(ctx context.Context, userID uuid.UUID, status models.DeclaredStatus, at time.Time) (*models.PresenceRecord, error) {
	var rec models.PresenceRecord
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO presence_records (user_id, last_seen, declared_status, updated_at)
		VALUES (?, ?, ?, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET declared_status = EXCLUDED.declared_status,
			updated_at = NOW()
		RETURNING user_id, last_seen, declared_status, updated_at
	`, userID, at, status).Scan(&rec).Error
	if err != nil {
		return nil, wrap(err, "repo.Presence.SetStatus")
	}
	return &rec, nil
}

// ListExpired returns records not declared offline whose last heartbeat
// falls in [from, to).
func (r *PresenceRepository) ListExpired(ctx context.Context, from, to time.Time) ([]models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("last_seen >= ? AND last_seen < ? AND declared_status <> ?", from, to, models.DeclaredOffline).
		Find(&recs).Error
	return recs, wrap(err, "repo.Presence.ListExpired")
}
