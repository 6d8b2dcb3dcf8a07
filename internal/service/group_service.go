package service

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/validation"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupService manages group rosters. Roster changes lock the group's
// conversation row, so they serialize with sends in progress.
type GroupService struct {
	store  repository.Store
	unread *cache.UnreadCache
	notifier
}

func NewGroupService(store repository.Store, unread *cache.UnreadCache, pub fanout.Publisher, log *zap.Logger) *GroupService {
	return &GroupService{store: store, unread: unread, notifier: newNotifier(pub, log)}
}

type CreateGroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

func (s *GroupService) CreateGroup(ctx context.Context, creator uuid.UUID, in CreateGroupInput) (*models.Group, error) {
	name := validation.NormalizeGroupName(in.Name)
	if !validation.ValidateGroupName(name) {
		return nil, apperrors.InvalidArg("invalid group name")
	}
	group := &models.Group{
		Name:        name,
		Description: validation.TrimAndLimit(in.Description, validation.MaxDescriptionLength),
		IsPublic:    in.IsPublic,
		CreatorID:   creator,
	}

	var out outbox
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		if err := tx.Groups().Create(ctx, group); err != nil {
			return err
		}
		if err := tx.Conversations().Ensure(ctx, models.NewGroupConversation(group.ID)); err != nil {
			return err
		}
		// Add creator as admin
		if err := tx.Groups().AddMember(ctx, group.ID, creator, models.RoleAdmin); err != nil {
			return err
		}
		return stageRoster(ctx, tx, &out, group.ID, []uuid.UUID{creator})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, &out)
	return group, nil
}

// AddMember adds user to the group. Users may join public groups on their
// own; anyone else must be added by an admin.
func (s *GroupService) AddMember(ctx context.Context, actor, groupID, user uuid.UUID) error {
	var out outbox
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		group, err := tx.Groups().FindByID(ctx, groupID)
		if err != nil {
			if isNotFound(err) {
				return apperrors.ErrGroupNotFound
			}
			return err
		}
		if _, err := tx.Conversations().LockByID(ctx, models.GroupConversationID(groupID)); err != nil {
			return err
		}

		if actor != user || !group.IsPublic {
			if err := requireAdmin(ctx, tx, groupID, actor); err != nil {
				return err
			}
		}

		if err := tx.Groups().AddMember(ctx, groupID, user, models.RoleMember); err != nil {
			if isDuplicate(err) {
				return apperrors.ErrAlreadyMember
			}
			return err
		}
		roster, err := tx.Groups().MemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		return stageRoster(ctx, tx, &out, groupID, roster)
	})
	if err != nil {
		return err
	}

	s.flush(ctx, &out)
	return nil
}

// RemoveMember takes user out of the group, by their own choice or by an
// admin. The member's ledger entries go with them.
func (s *GroupService) RemoveMember(ctx context.Context, actor, groupID, user uuid.UUID) error {
	var out outbox
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		if _, err := tx.Groups().FindByID(ctx, groupID); err != nil {
			if isNotFound(err) {
				return apperrors.ErrGroupNotFound
			}
			return err
		}
		if _, err := tx.Conversations().LockByID(ctx, models.GroupConversationID(groupID)); err != nil {
			return err
		}
		if actor != user {
			if err := requireAdmin(ctx, tx, groupID, actor); err != nil {
				return err
			}
		}

		removed, err := tx.Groups().RemoveMember(ctx, groupID, user)
		if err != nil {
			return err
		}
		if !removed {
			return apperrors.ErrNotMember
		}
		if err := tx.ReadStates().DeleteGroupEntriesForMember(ctx, groupID, user); err != nil {
			return err
		}
		roster, err := tx.Groups().MemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		return stageRoster(ctx, tx, &out, groupID, roster)
	})
	if err != nil {
		return err
	}

	if err := s.unread.Invalidate(ctx, models.GroupConversationID(groupID), user); err != nil {
		s.log.Debug("unread cache invalidate failed", zap.Error(err))
	}
	s.flush(ctx, &out)
	return nil
}

// Members lists the roster. Members of the group and anyone for a public
// group may read it.
func (s *GroupService) Members(ctx context.Context, actor, groupID uuid.UUID) ([]models.GroupMember, error) {
	group, err := s.store.Groups().FindByID(ctx, groupID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrGroupNotFound
		}
		return nil, err
	}
	if !group.IsPublic {
		if err := requireMember(ctx, s.store, groupID, actor); err != nil {
			return nil, err
		}
	}
	return s.store.Groups().ListMembers(ctx, groupID)
}

func (s *GroupService) ListGroups(ctx context.Context, user uuid.UUID) ([]models.Group, error) {
	return s.store.Groups().ListForUser(ctx, user)
}

func (s *GroupService) IsMember(ctx context.Context, groupID, user uuid.UUID) (bool, error) {
	return s.store.Groups().IsMember(ctx, groupID, user)
}

// RosterSnapshot is the resync state of a group-roster topic.
func (s *GroupService) RosterSnapshot(ctx context.Context, groupID uuid.UUID) (*events.RosterChanged, error) {
	ids, err := s.store.Groups().MemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return &events.RosterChanged{GroupID: groupID, Members: ids}, nil
}

func requireAdmin(ctx context.Context, store repository.Store, groupID, user uuid.UUID) error {
	m, err := store.Groups().GetMember(ctx, groupID, user)
	if err != nil {
		if isNotFound(err) {
			return apperrors.ErrNotGroupAdmin
		}
		return err
	}
	if m.Role != models.RoleAdmin {
		return apperrors.ErrNotGroupAdmin
	}
	return nil
}

// stageRoster runs under the group's conversation lock, which every roster
// change holds.
func stageRoster(ctx context.Context, tx repository.Store, out *outbox, groupID uuid.UUID, roster []uuid.UUID) error {
	if roster == nil {
		roster = []uuid.UUID{}
	}
	return out.stage(ctx, tx, events.GroupRosterTopic(groupID), events.KindRosterChanged, events.RosterChanged{
		GroupID: groupID,
		Members: roster,
	})
}
