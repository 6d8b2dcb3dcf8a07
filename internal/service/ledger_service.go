package service

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService answers read/unread questions. Direct conversations keep a
// read cursor per (owner, peer); groups keep one flag per member and
// message, written by MessageService when the message is sent.
type LedgerService struct {
	store  repository.Store
	unread *cache.UnreadCache
	notifier

	Now func() time.Time
}

func NewLedgerService(store repository.Store, unread *cache.UnreadCache, pub fanout.Publisher, log *zap.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		unread:   unread,
		notifier: newNotifier(pub, log),
		Now:      time.Now,
	}
}

func checkTarget(actor uuid.UUID, target models.Target) error {
	if !target.Valid() || (!target.IsGroup() && target.PeerID == actor) {
		return apperrors.ErrInvalidTarget
	}
	return nil
}

func requireMember(ctx context.Context, store repository.Store, groupID, user uuid.UUID) error {
	if _, err := store.Groups().FindByID(ctx, groupID); err != nil {
		if isNotFound(err) {
			return apperrors.ErrGroupNotFound
		}
		return err
	}
	ok, err := store.Groups().IsMember(ctx, groupID, user)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotAuthorized
	}
	return nil
}

// directUnread counts peer's visible messages after owner's cursor.
func directUnread(ctx context.Context, store repository.Store, owner, peer uuid.UUID) (int64, *time.Time, error) {
	var after *time.Time
	cur, err := store.ReadStates().GetCursor(ctx, owner, peer)
	switch {
	case err == nil:
		after = &cur.ReadAt
	case !isNotFound(err):
		return 0, nil, err
	}
	n, err := store.ReadStates().CountDirectUnread(ctx, models.DirectConversationID(owner, peer), peer, after)
	return n, after, err
}

// UnreadCount is the number of messages in the target conversation actor
// has not read.
func (s *LedgerService) UnreadCount(ctx context.Context, actor uuid.UUID, target models.Target) (int64, error) {
	if err := checkTarget(actor, target); err != nil {
		return 0, err
	}
	convID := target.ConversationID(actor)
	cached, gen, ok := s.unread.Get(ctx, actor, convID)
	if ok {
		return cached, nil
	}

	var n int64
	if target.IsGroup() {
		if err := requireMember(ctx, s.store, target.GroupID, actor); err != nil {
			return 0, err
		}
		var err error
		if n, err = s.store.ReadStates().CountGroupUnread(ctx, target.GroupID, actor); err != nil {
			return 0, err
		}
	} else {
		var err error
		if n, _, err = directUnread(ctx, s.store, actor, target.PeerID); err != nil {
			return 0, err
		}
	}

	if err := s.unread.Set(ctx, actor, convID, gen, n); err != nil {
		s.log.Debug("unread cache set failed", zap.Error(err))
	}
	return n, nil
}

// MarkRead marks everything in the target conversation read for actor and
// publishes the new count on actor's read topic.
func (s *LedgerService) MarkRead(ctx context.Context, actor uuid.UUID, target models.Target) (*events.ReadChanged, error) {
	if err := checkTarget(actor, target); err != nil {
		return nil, err
	}
	if target.IsGroup() {
		return s.markGroupRead(ctx, actor, target.GroupID)
	}
	return s.markDirectRead(ctx, actor, target.PeerID)
}

func (s *LedgerService) markDirectRead(ctx context.Context, actor, peer uuid.UUID) (*events.ReadChanged, error) {
	convID := models.DirectConversationID(actor, peer)
	topic := events.DirectReadTopic(actor, peer)

	var (
		changed *events.ReadChanged
		out     outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		seq, err := out.reserve(ctx, tx, topic)
		if err != nil {
			return err
		}

		// a cursor behind the newest message would leave it unread when the
		// sender's clock ran ahead
		at := dbTime(s.Now())
		conv, err := tx.Conversations().FindByID(ctx, convID)
		switch {
		case err == nil:
			if conv.LastMessageAt != nil && conv.LastMessageAt.After(at) {
				at = *conv.LastMessageAt
			}
		case !isNotFound(err):
			return err
		}

		readAt, err := tx.ReadStates().AdvanceCursor(ctx, actor, peer, at)
		if err != nil {
			return err
		}
		n, err := tx.ReadStates().CountDirectUnread(ctx, convID, peer, &readAt)
		if err != nil {
			return err
		}
		changed = &events.ReadChanged{ConversationID: convID, OwnerID: actor, Unread: n, ReadAt: &readAt}
		out.add(topic, events.KindDirectRead, seq, changed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, convID, actor)
	s.flush(ctx, &out)
	return changed, nil
}

func (s *LedgerService) markGroupRead(ctx context.Context, actor, groupID uuid.UUID) (*events.ReadChanged, error) {
	convID := models.GroupConversationID(groupID)
	topic := events.GroupReadTopic(groupID, actor)

	var (
		changed *events.ReadChanged
		out     outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		if err := requireMember(ctx, tx, groupID, actor); err != nil {
			return err
		}
		seq, err := out.reserve(ctx, tx, topic)
		if err != nil {
			return err
		}

		at := dbTime(s.Now())
		if _, err := tx.ReadStates().MarkGroupRead(ctx, groupID, actor, at); err != nil {
			return err
		}
		n, err := tx.ReadStates().CountGroupUnread(ctx, groupID, actor)
		if err != nil {
			return err
		}
		changed = &events.ReadChanged{ConversationID: convID, OwnerID: actor, Unread: n, ReadAt: &at}
		out.add(topic, events.KindGroupRead, seq, changed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, convID, actor)
	s.flush(ctx, &out)
	return changed, nil
}

// ReadState reports actor's position: the cursor for a direct conversation,
// the ids still unread for a group.
func (s *LedgerService) ReadState(ctx context.Context, actor uuid.UUID, target models.Target) (models.ReadState, error) {
	if err := checkTarget(actor, target); err != nil {
		return models.ReadState{}, err
	}
	if target.IsGroup() {
		if err := requireMember(ctx, s.store, target.GroupID, actor); err != nil {
			return models.ReadState{}, err
		}
		ids, err := s.store.ReadStates().ListGroupUnread(ctx, target.GroupID, actor)
		if err != nil {
			return models.ReadState{}, err
		}
		return models.FlagState(ids), nil
	}

	cur, err := s.store.ReadStates().GetCursor(ctx, actor, target.PeerID)
	if err != nil {
		if isNotFound(err) {
			return models.CursorState(nil), nil
		}
		return models.ReadState{}, err
	}
	return models.CursorState(&cur.ReadAt), nil
}

// ReadSnapshot is the resync state of actor's read topic for target.
func (s *LedgerService) ReadSnapshot(ctx context.Context, actor uuid.UUID, target models.Target) (*events.ReadChanged, error) {
	if err := checkTarget(actor, target); err != nil {
		return nil, err
	}
	out := &events.ReadChanged{ConversationID: target.ConversationID(actor), OwnerID: actor}
	if target.IsGroup() {
		n, err := s.store.ReadStates().CountGroupUnread(ctx, target.GroupID, actor)
		if err != nil {
			return nil, err
		}
		out.Unread = n
		return out, nil
	}
	n, after, err := directUnread(ctx, s.store, actor, target.PeerID)
	if err != nil {
		return nil, err
	}
	out.Unread, out.ReadAt = n, after
	return out, nil
}

// ListConversations returns actor's conversations with their last message
// and unread count, most recent activity first.
func (s *LedgerService) ListConversations(ctx context.Context, actor uuid.UUID) ([]events.ConversationSummary, error) {
	rows, err := s.store.Conversations().ListSummaries(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]events.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		sum := events.ConversationSummary{
			ConversationID: r.ConversationID,
			Kind:           r.Kind,
			PeerID:         r.PeerID,
			GroupID:        r.GroupID,
			LastActivity:   r.LastActivity,
			Unread:         r.UnreadCount,
		}
		if r.GroupName != nil {
			sum.Title = *r.GroupName
		}
		if r.MessageID != nil {
			sum.LastMessage = &events.MessageView{
				ID:             *r.MessageID,
				ConversationID: r.ConversationID,
				Seq:            derefInt64(r.MessageSeq),
				ClientID:       derefString(r.MessageClientID),
				SenderID:       derefUUID(r.MessageSenderID),
				RecipientID:    r.MessageRecipientID,
				GroupID:        r.GroupID,
				Body:           derefString(r.MessageBody),
			}
			if r.MessageCreatedAt != nil {
				sum.LastMessage.CreatedAt = *r.MessageCreatedAt
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *LedgerService) invalidate(ctx context.Context, conversationID string, owners ...uuid.UUID) {
	if err := s.unread.Invalidate(ctx, conversationID, owners...); err != nil {
		s.log.Debug("unread cache invalidate failed", zap.String("conversation", conversationID), zap.Error(err))
	}
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefUUID(p *uuid.UUID) uuid.UUID {
	if p == nil {
		return uuid.Nil
	}
	return *p
}
