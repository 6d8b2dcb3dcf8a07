package service

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type FriendshipService struct {
	store  repository.Store
	unread *cache.UnreadCache
	notifier
}

func NewFriendshipService(store repository.Store, unread *cache.UnreadCache, pub fanout.Publisher, log *zap.Logger) *FriendshipService {
	return &FriendshipService{store: store, unread: unread, notifier: newNotifier(pub, log)}
}

// FriendRequests are the pending relations of one user, split by direction.
type FriendRequests struct {
	Incoming []models.Friendship `json:"incoming"`
	Outgoing []models.Friendship `json:"outgoing"`
}

var errConcurrentInsert = errors.New("friendship inserted concurrently")

// SendRequest creates a pending request from -> to. Repeating a request that
// is already pending in the same direction returns the existing one.
func (s *FriendshipService) SendRequest(ctx context.Context, from, to uuid.UUID) (*models.Friendship, error) {
	if from == to {
		return nil, apperrors.ErrSelfRequest
	}

	var (
		result *models.Friendship
		out    outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		existing, err := tx.Friendships().FindForUpdate(ctx, from, to)
		switch {
		case err == nil:
			result, err = checkExisting(existing, from)
			return err
		case !isNotFound(err):
			return err
		}

		f := models.NewFriendRequest(from, to)
		if err := tx.Friendships().Create(ctx, f); err != nil {
			if isDuplicate(err) {
				return errConcurrentInsert
			}
			return err
		}
		result = f
		if err := out.stage(ctx, tx, events.FriendshipTopic(f.UserLow, f.UserHigh), events.KindFriendshipChanged, FriendshipView(f)); err != nil {
			return err
		}
		return out.stage(ctx, tx, events.InboxTopic(to), events.KindFriendRequest, events.FriendRequestNotice{From: from})
	})

	if errors.Is(err, errConcurrentInsert) {
		// the competing insert committed; judge it like any existing row
		existing, ferr := s.store.Friendships().Find(ctx, from, to)
		if ferr != nil {
			return nil, ferr
		}
		return checkExisting(existing, from)
	}
	if err != nil {
		return nil, err
	}

	s.flush(ctx, &out)
	return result, nil
}

func checkExisting(f *models.Friendship, from uuid.UUID) (*models.Friendship, error) {
	switch f.StateFor(from) {
	case models.StateAccepted:
		return nil, apperrors.ErrAlreadyFriends
	case models.StatePendingIn:
		return nil, apperrors.ErrRequestAlreadyPending
	}
	return f, nil
}

// Respond accepts or rejects the pending request peer sent to actor and
// returns the resulting state. Rejection deletes the relation.
func (s *FriendshipService) Respond(ctx context.Context, actor, peer uuid.UUID, accept bool) (models.FriendshipState, error) {
	var (
		deleted bool
		out     outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		f, err := tx.Friendships().FindForUpdate(ctx, actor, peer)
		if err != nil {
			if isNotFound(err) {
				return apperrors.ErrNoSuchRequest
			}
			return err
		}
		if f.Status != models.FriendshipPending {
			return apperrors.ErrNoSuchRequest
		}
		if f.RecipientID != actor {
			return apperrors.ErrNotRecipient
		}

		if accept {
			if err := tx.Friendships().Accept(ctx, f.ID); err != nil {
				return err
			}
			f.Status = models.FriendshipAccepted
			return out.stage(ctx, tx, events.FriendshipTopic(f.UserLow, f.UserHigh), events.KindFriendshipChanged, FriendshipView(f))
		}
		if _, err := tx.Friendships().Delete(ctx, actor, peer); err != nil {
			return err
		}
		deleted = true
		return stageRemoved(ctx, tx, &out, actor, peer)
	})
	if err != nil {
		return "", err
	}

	s.flush(ctx, &out)
	if deleted {
		return models.StateNone, nil
	}
	return models.StateAccepted, nil
}

// Remove deletes any relation between actor and peer together with both
// read cursors of the pair. Messages are kept.
func (s *FriendshipService) Remove(ctx context.Context, actor, peer uuid.UUID) error {
	if actor == peer {
		return apperrors.ErrSelfRequest
	}
	var out outbox
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		deleted, err := tx.Friendships().Delete(ctx, actor, peer)
		if err != nil {
			return err
		}
		if err := tx.ReadStates().DeleteCursors(ctx, actor, peer); err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		return stageRemoved(ctx, tx, &out, actor, peer)
	})
	if err != nil {
		return err
	}
	if err := s.unread.Invalidate(ctx, models.DirectConversationID(actor, peer), actor, peer); err != nil {
		s.log.Debug("unread cache invalidate failed", zap.Error(err))
	}
	s.flush(ctx, &out)
	return nil
}

// Status reports the relation between viewer and other from viewer's side.
func (s *FriendshipService) Status(ctx context.Context, viewer, other uuid.UUID) (models.FriendshipState, error) {
	f, err := s.store.Friendships().Find(ctx, viewer, other)
	if err != nil {
		if isNotFound(err) {
			return models.StateNone, nil
		}
		return "", err
	}
	return f.StateFor(viewer), nil
}

func (s *FriendshipService) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	state, err := s.Status(ctx, a, b)
	return state == models.StateAccepted, err
}

func (s *FriendshipService) ListFriends(ctx context.Context, user uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.store.Friendships().ListByUser(ctx, user, models.FriendshipAccepted)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Other(user))
	}
	return ids, nil
}

func (s *FriendshipService) ListRequests(ctx context.Context, user uuid.UUID) (*FriendRequests, error) {
	rows, err := s.store.Friendships().ListByUser(ctx, user, models.FriendshipPending)
	if err != nil {
		return nil, err
	}
	out := &FriendRequests{Incoming: []models.Friendship{}, Outgoing: []models.Friendship{}}
	for _, f := range rows {
		if f.RecipientID == user {
			out.Incoming = append(out.Incoming, f)
		} else {
			out.Outgoing = append(out.Outgoing, f)
		}
	}
	return out, nil
}

// FriendshipView is the published form of a relation.
func FriendshipView(f *models.Friendship) events.FriendshipChanged {
	status := "none"
	switch f.Status {
	case models.FriendshipPending:
		status = "pending"
	case models.FriendshipAccepted:
		status = "accepted"
	}
	return events.FriendshipChanged{
		UserLow:     f.UserLow,
		UserHigh:    f.UserHigh,
		Status:      status,
		RequesterID: f.RequesterID,
	}
}

func stageRemoved(ctx context.Context, tx repository.Store, out *outbox, a, b uuid.UUID) error {
	low, high := models.OrderedPair(a, b)
	return out.stage(ctx, tx, events.FriendshipTopic(a, b), events.KindFriendshipChanged, events.FriendshipChanged{
		UserLow:  low,
		UserHigh: high,
		Status:   "none",
	})
}
