package repository

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

func (r *FriendshipRepository) Find(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	return r.find(r.db.WithContext(ctx), a, b, "repo.Friendship.Find")
}

// FindForUpdate locks the pair's row until the surrounding transaction ends.
func (r *FriendshipRepository) FindForUpdate(ctx context.Context, a, b uuid.UUID) (*models.Friendship, error) {
	q := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.find(q, a, b, "repo.Friendship.FindForUpdate")
}

func (r *FriendshipRepository) find(q *gorm.DB, a, b uuid.UUID, op string) (*models.Friendship, error) {
	low, high := models.OrderedPair(a, b)
	var f models.Friendship
	if err := q.Where("user_low = ? AND user_high = ?", low, high).First(&f).Error; err != nil {
		return nil, wrap(err, op)
	}
	return &f, nil
}

func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) error {
	return wrap(r.db.WithContext(ctx).Create(f).Error, "repo.Friendship.Create")
}

func (r *FriendshipRepository) Accept(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("id = ? AND status = ?", id, models.FriendshipPending).
		Update("status", models.FriendshipAccepted)
	if res.Error != nil {
		return wrap(res.Error, "repo.Friendship.Accept")
	}
	if res.RowsAffected == 0 {
		return wrap(ErrNotFound, "repo.Friendship.Accept")
	}
	return nil
}

func (r *FriendshipRepository) Delete(ctx context.Context, a, b uuid.UUID) (bool, error) {
	low, high := models.OrderedPair(a, b)
	res := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		Delete(&models.Friendship{})
	if res.Error != nil {
		return false, wrap(res.Error, "repo.Friendship.Delete")
	}
	return res.RowsAffected > 0, nil
}

func (r *FriendshipRepository) ListByUser(ctx context.Context, userID uuid.UUID, status models.FriendshipStatus) ([]models.Friendship, error) {
	var out []models.Friendship
	err := r.db.WithContext(ctx).
		Where("(user_low = ? OR user_high = ?) AND status = ?", userID, userID, status).
		Order("updated_at DESC").
		Find(&out).Error
	return out, wrap(err, "repo.Friendship.ListByUser")
}
