package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageService_SendValidation(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, stranger := users[0], users[1], users[2]
	env.MakeFriends(a, b)
	g := env.CreateGroup(b)
	ctx := context.Background()

	tests := []struct {
		name    string
		sender  uuid.UUID
		in      SendInput
		wantErr error
	}{
		{"empty body", a, SendInput{Target: models.DirectTarget(b), Body: "   "}, apperrors.ErrEmptyBody},
		{"no target", a, SendInput{Body: "hi"}, apperrors.ErrInvalidTarget},
		{"both targets", a, SendInput{Target: models.Target{PeerID: b, GroupID: g.ID}, Body: "hi"}, apperrors.ErrInvalidTarget},
		{"self target", a, SendInput{Target: models.DirectTarget(a), Body: "hi"}, apperrors.ErrInvalidTarget},
		{"not friends", stranger, SendInput{Target: models.DirectTarget(a), Body: "hi"}, apperrors.ErrNotAuthorized},
		{"not a member", a, SendInput{Target: models.GroupTarget(g.ID), Body: "hi"}, apperrors.ErrNotAuthorized},
		{"unknown group", a, SendInput{Target: models.GroupTarget(uuid.New()), Body: "hi"}, apperrors.ErrGroupNotFound},
		{"bad client id", a, SendInput{Target: models.DirectTarget(b), Body: "hi", ClientID: "has spaces"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.messages.Send(ctx, tt.sender, tt.in)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.NotEqual(t, apperrors.CodeInternal, apperrors.CodeOf(err))
		})
	}
}

func TestMessageService_BodyTooLong(t *testing.T) {
	env := newTestEnv(t)
	env.messages = NewMessageService(env.Store, nil, MessageConfig{MaxBodyLength: 5}, env.bus, nil)
	users := env.Users(2)
	env.MakeFriends(users[0], users[1])

	_, err := env.messages.Send(context.Background(), users[0], SendInput{Target: models.DirectTarget(users[1]), Body: "too long"})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

// The scenario: request, accept, exchange messages, read, presence.
func TestMessageService_FriendScenario(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	ctx := context.Background()

	conv := env.bus.Subscribe(events.ConversationTopic(models.DirectConversationID(a, b)))
	defer conv.Close()

	_, err := env.friendships.SendRequest(ctx, a, b)
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, a, SendInput{Target: models.DirectTarget(b), Body: "too early"})
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	_, err = env.friendships.Respond(ctx, b, a, true)
	require.NoError(t, err)

	res, err := env.messages.Send(ctx, a, SendInput{Target: models.DirectTarget(b), Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Message.Seq)
	assert.Equal(t, int64(1), res.Unread[b])
	assert.Equal(t, int64(1), unread(t, env, b, models.DirectTarget(a)))

	env.Clock.Advance(time.Second)
	_, err = env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread(t, env, b, models.DirectTarget(a)))

	env.Clock.Advance(time.Second)
	res, err = env.messages.Send(ctx, b, SendInput{Target: models.DirectTarget(a), Body: "hi back"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Message.Seq)
	assert.Equal(t, int64(1), unread(t, env, a, models.DirectTarget(b)))

	got := drain(conv)
	require.Len(t, got, 2)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, events.KindMessageCreated, ev.Kind)
	}
	var created events.MessageCreated
	require.NoError(t, got[1].Decode(&created))
	assert.Equal(t, "hi back", created.Message.Body)
	assert.Equal(t, int64(1), created.Unread[a])

	env.presence.Heartbeat(ctx, a, env.Clock.Now())
	assert.Equal(t, models.LivenessOnline, env.presence.Liveness(ctx, a))
	assert.Equal(t, models.LivenessOffline, env.presence.Liveness(ctx, b))
}

func TestMessageService_IdempotentRetry(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	conv := env.bus.Subscribe(events.ConversationTopic(models.DirectConversationID(a, b)))
	defer conv.Close()

	in := SendInput{Target: models.DirectTarget(b), Body: "once", ClientID: "c-1"}
	first, err := env.messages.Send(ctx, a, in)
	require.NoError(t, err)
	again, err := env.messages.Send(ctx, a, in)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Message.ID, again.Message.ID)
	assert.Equal(t, int64(1), unread(t, env, b, models.DirectTarget(a)))
	assert.Len(t, drain(conv), 1, "a retry is not published twice")

	// the same client id cannot be reused for another conversation
	g := env.CreateGroup(a)
	_, err = env.messages.Send(ctx, a, SendInput{Target: models.GroupTarget(g.ID), Body: "x", ClientID: "c-1"})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestMessageService_GroupDeliveryAtomicity(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, c := users[0], users[1], users[2]
	g := env.CreateGroup(a, b, c)
	target := models.GroupTarget(g.ID)
	ctx := context.Background()

	conv := env.bus.Subscribe(events.ConversationTopic(models.GroupConversationID(g.ID)))
	defer conv.Close()

	env.Store.Fail("ReadStates.CreateGroupEntries", errors.New("disk full"))
	_, err := env.messages.Send(ctx, a, SendInput{Target: target, Body: "lost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDeliveryAtomicity)
	assert.Equal(t, "message not sent, please retry", apperrors.MessageOf(err))

	msgs, err := env.messages.History(ctx, a, target, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "the message was rolled back")
	assert.Equal(t, int64(0), unread(t, env, b, target))
	assert.Empty(t, drain(conv), "nothing is published for a failed send")

	env.Store.Fail("ReadStates.CreateGroupEntries", nil)
	res, err := env.messages.Send(ctx, a, SendInput{Target: target, Body: "retry"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Message.Seq, "the failed send did not consume a sequence")
	assert.Equal(t, map[uuid.UUID]int64{b: 1, c: 1}, res.Unread)
}

func TestMessageService_SendTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.messages = NewMessageService(env.Store, nil, MessageConfig{SendTimeout: time.Nanosecond}, env.bus, nil)
	users := env.Users(2)
	env.MakeFriends(users[0], users[1])

	_, err := env.messages.Send(context.Background(), users[0], SendInput{Target: models.DirectTarget(users[1]), Body: "slow"})
	assert.ErrorIs(t, err, apperrors.ErrSendTimeout)
}

func TestMessageService_ConcurrentSendsAreTotallyOrdered(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(4)
	g := env.CreateGroup(users[0], users[1:]...)
	target := models.GroupTarget(g.ID)
	ctx := context.Background()

	const perSender = 10
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := env.messages.Send(ctx, u, SendInput{Target: target, Body: "m"})
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	msgs, err := env.messages.History(ctx, users[0], target, 0, 100)
	require.NoError(t, err)
	require.Len(t, msgs, len(users)*perSender)
	for i := range msgs {
		assert.Equal(t, int64(i+1), msgs[i].Seq)
		if i > 0 {
			assert.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt), "created_at strictly increases with seq")
		}
	}

	// each member has every message but their own unread
	for _, u := range users {
		assert.Equal(t, int64((len(users)-1)*perSender), unread(t, env, u, target))
	}
}

func TestMessageService_Delete(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	msg := send(t, env, a, models.DirectTarget(b), "regret")
	conv := env.bus.Subscribe(events.ConversationTopic(msg.ConversationID))
	defer conv.Close()

	assert.ErrorIs(t, env.messages.Delete(ctx, b, msg.ID), apperrors.ErrNotMessageSender)
	assert.ErrorIs(t, env.messages.Delete(ctx, a, 9999), apperrors.ErrMessageNotFound)

	require.NoError(t, env.messages.Delete(ctx, a, msg.ID))
	assert.ErrorIs(t, env.messages.Delete(ctx, a, msg.ID), apperrors.ErrMessageNotFound)

	got := drain(conv)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindMessageDeleted, got[0].Kind)
	assert.Equal(t, uint64(2), got[0].Seq, "deletion takes the next conversation sequence")

	next := send(t, env, a, models.DirectTarget(b), "better")
	assert.Equal(t, int64(3), next.Seq)
}

func TestMessageService_HistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		send(t, env, a, models.DirectTarget(b), "m")
	}

	page, err := env.messages.History(ctx, b, models.DirectTarget(a), 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []int64{4, 5}, []int64{page[0].Seq, page[1].Seq})

	page, err = env.messages.History(ctx, b, models.DirectTarget(a), page[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(1), page[0].Seq)
}
