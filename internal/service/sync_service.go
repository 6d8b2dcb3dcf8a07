package service

import (
	"context"
	"encoding/json"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
)

// SyncService authorizes topic subscriptions and builds resync snapshots.
type SyncService struct {
	store       repository.Store
	friendships *FriendshipService
	ledger      *LedgerService
	presence    *PresenceService
	messages    *MessageService
	groups      *GroupService
}

func NewSyncService(store repository.Store, friendships *FriendshipService, ledger *LedgerService, presence *PresenceService, messages *MessageService, groups *GroupService) *SyncService {
	return &SyncService{
		store:       store,
		friendships: friendships,
		ledger:      ledger,
		presence:    presence,
		messages:    messages,
		groups:      groups,
	}
}

// Authorize parses name and checks that actor may observe it: a
// participant, a group member, a friend (presence) or actor themselves.
func (s *SyncService) Authorize(ctx context.Context, actor uuid.UUID, name string) (events.Topic, error) {
	t, err := events.ParseTopic(name)
	if err != nil {
		return events.Topic{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "unknown topic", err)
	}

	var ok bool
	switch t.Kind {
	case events.TopicConversation:
		if len(t.IDs) == 2 {
			ok = t.IDs[0] == actor || t.IDs[1] == actor
		} else {
			ok, err = s.groups.IsMember(ctx, t.IDs[0], actor)
		}
	case events.TopicFriendship:
		ok = t.IDs[0] == actor || t.IDs[1] == actor
	case events.TopicPresence:
		ok = t.IDs[0] == actor
		if !ok {
			ok, err = s.friendships.AreFriends(ctx, actor, t.IDs[0])
		}
	case events.TopicGroupRoster:
		ok, err = s.groups.IsMember(ctx, t.IDs[0], actor)
	case events.TopicDirectRead:
		ok = t.IDs[0] == actor
	case events.TopicGroupRead:
		if t.IDs[1] == actor {
			ok, err = s.groups.IsMember(ctx, t.IDs[0], actor)
		}
	case events.TopicInbox:
		ok = t.IDs[0] == actor
	}
	if err != nil {
		return events.Topic{}, err
	}
	if !ok {
		return events.Topic{}, apperrors.ErrNotAuthorized
	}
	return t, nil
}

// Resync returns the canonical state of a topic. The sequence is read
// before the state, so the state reflects at least every event up to it.
func (s *SyncService) Resync(ctx context.Context, actor uuid.UUID, name string) (*events.Snapshot, error) {
	t, err := s.Authorize(ctx, actor, name)
	if err != nil {
		return nil, err
	}

	if t.Kind == events.TopicConversation {
		target := models.DirectTarget(other(t.IDs, actor))
		if len(t.IDs) == 1 {
			target = models.GroupTarget(t.IDs[0])
		}
		snap, err := s.messages.Snapshot(ctx, actor, target)
		if err != nil {
			return nil, err
		}
		return snapshotOf(name, uint64(snap.LastSeq), snap)
	}

	seq, err := s.store.Sequences().Current(ctx, name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "sequence unavailable", err)
	}

	var state interface{}
	switch t.Kind {
	case events.TopicFriendship:
		state, err = s.friendshipState(ctx, t.IDs[0], t.IDs[1])
	case events.TopicPresence:
		state = s.presence.Status(ctx, t.IDs[0])
	case events.TopicGroupRoster:
		state, err = s.groups.RosterSnapshot(ctx, t.IDs[0])
	case events.TopicDirectRead:
		state, err = s.ledger.ReadSnapshot(ctx, actor, models.DirectTarget(t.IDs[1]))
	case events.TopicGroupRead:
		state, err = s.ledger.ReadSnapshot(ctx, actor, models.GroupTarget(t.IDs[0]))
	case events.TopicInbox:
		var convs []events.ConversationSummary
		convs, err = s.ledger.ListConversations(ctx, actor)
		state = events.InboxSnapshot{Conversations: convs}
	}
	if err != nil {
		return nil, err
	}
	return snapshotOf(name, uint64(seq), state)
}

func (s *SyncService) friendshipState(ctx context.Context, a, b uuid.UUID) (events.FriendshipChanged, error) {
	f, err := s.store.Friendships().Find(ctx, a, b)
	if err != nil {
		if isNotFound(err) {
			low, high := models.OrderedPair(a, b)
			return events.FriendshipChanged{UserLow: low, UserHigh: high, Status: "none"}, nil
		}
		return events.FriendshipChanged{}, err
	}
	return FriendshipView(f), nil
}

func snapshotOf(topic string, seq uint64, state interface{}) (*events.Snapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode snapshot", err)
	}
	return &events.Snapshot{Topic: topic, Seq: seq, State: raw}, nil
}

func other(pair []uuid.UUID, self uuid.UUID) uuid.UUID {
	if pair[0] == self {
		return pair[1]
	}
	return pair[0]
}
