package repository

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	return wrap(r.db.WithContext(ctx).Omit("Members").Create(group).Error, "repo.Group.Create")
}

func (r *GroupRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "repo.Group.FindByID")
	}
	return &group, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID, role models.GroupRole) error {
	member := models.GroupMember{
		GroupID: groupID,
		UserID:  userID,
		Role:    role,
	}
	return wrap(r.db.WithContext(ctx).Create(&member).Error, "repo.Group.AddMember")
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{})
	if res.Error != nil {
		return false, wrap(res.Error, "repo.Group.RemoveMember")
	}
	return res.RowsAffected > 0, nil
}

func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		return nil, wrap(err, "repo.Group.GetMember")
	}
	return &member, nil
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, wrap(err, "repo.Group.IsMember")
}

// MemberIDs is the membership snapshot used when fanning a message out.
func (r *GroupRepository) MemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("joined_at, user_id").
		Pluck("user_id", &ids).Error
	return ids, wrap(err, "repo.Group.MemberIDs")
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at, user_id").
		Find(&members).Error
	return members, wrap(err, "repo.Group.ListMembers")
}

func (r *GroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Order("groups.created_at").
		Find(&groups).Error
	return groups, wrap(err, "repo.Group.ListForUser")
}
