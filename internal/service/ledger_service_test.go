package service

import (
	"context"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, env *testEnv, from uuid.UUID, target models.Target, body string) *models.Message {
	t.Helper()
	res, err := env.messages.Send(context.Background(), from, SendInput{Target: target, Body: body})
	require.NoError(t, err)
	return res.Message
}

func unread(t *testing.T, env *testEnv, owner uuid.UUID, target models.Target) int64 {
	t.Helper()
	n, err := env.ledger.UnreadCount(context.Background(), owner, target)
	require.NoError(t, err)
	return n
}

func TestLedger_DirectUnreadConservation(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		send(t, env, a, models.DirectTarget(b), "ping")
		env.Clock.Advance(time.Second)
	}
	assert.Equal(t, int64(3), unread(t, env, b, models.DirectTarget(a)))
	assert.Equal(t, int64(0), unread(t, env, a, models.DirectTarget(b)), "own messages are never unread")

	rc, err := env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rc.Unread)
	assert.Equal(t, int64(0), unread(t, env, b, models.DirectTarget(a)))

	send(t, env, a, models.DirectTarget(b), "again")
	assert.Equal(t, int64(1), unread(t, env, b, models.DirectTarget(a)))
}

func TestLedger_MarkReadCoversMessagesAheadOfClock(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	send(t, env, a, models.DirectTarget(b), "one")
	// the reader's clock is behind the stored message time
	env.Clock.Advance(-time.Minute)

	_, err := env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread(t, env, b, models.DirectTarget(a)))
}

func TestLedger_CursorNeverMovesBack(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	ctx := context.Background()

	_, err := env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)
	first, err := env.ledger.ReadState(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)

	env.Clock.Advance(-time.Hour)
	_, err = env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)
	second, err := env.ledger.ReadState(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)

	require.NotNil(t, first.Cursor)
	assert.Equal(t, models.ReadStateCursor, second.Kind)
	assert.True(t, second.Cursor.Equal(*first.Cursor))
}

func TestLedger_GroupUnreadConservation(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, c := users[0], users[1], users[2]
	g := env.CreateGroup(a, b, c)
	target := models.GroupTarget(g.ID)
	ctx := context.Background()

	send(t, env, a, target, "one")
	send(t, env, b, target, "two")

	assert.Equal(t, int64(1), unread(t, env, a, target))
	assert.Equal(t, int64(1), unread(t, env, b, target))
	assert.Equal(t, int64(2), unread(t, env, c, target))

	rs, err := env.ledger.ReadState(ctx, c, target)
	require.NoError(t, err)
	assert.Equal(t, models.ReadStatePerMessageFlags, rs.Kind)
	assert.Len(t, rs.Unread, 2)

	_, err = env.ledger.MarkRead(ctx, c, target)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread(t, env, c, target))
	assert.Equal(t, int64(1), unread(t, env, a, target), "other members are untouched")
}

func TestLedger_LateJoinerHasNoBacklog(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, late := users[0], users[1], users[2]
	g := env.CreateGroup(a, b)
	target := models.GroupTarget(g.ID)
	ctx := context.Background()

	send(t, env, a, target, "before")
	send(t, env, a, target, "before again")

	require.NoError(t, env.groups.AddMember(ctx, a, g.ID, late))
	assert.Equal(t, int64(0), unread(t, env, late, target))

	send(t, env, a, target, "after")
	assert.Equal(t, int64(1), unread(t, env, late, target))
	assert.Equal(t, int64(3), unread(t, env, b, target))
}

func TestLedger_LeaveDropsEntries(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	g := env.CreateGroup(a, b)
	target := models.GroupTarget(g.ID)
	ctx := context.Background()

	send(t, env, a, target, "one")
	require.NoError(t, env.groups.RemoveMember(ctx, b, g.ID, b))

	_, err := env.ledger.UnreadCount(ctx, b, target)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	require.NoError(t, env.groups.AddMember(ctx, a, g.ID, b))
	assert.Equal(t, int64(0), unread(t, env, b, target), "rejoining starts clean")
}

func TestLedger_SoftDeletedMessagesAreNotCounted(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, c := users[0], users[1], users[2]
	env.MakeFriends(a, b)
	g := env.CreateGroup(a, c)
	ctx := context.Background()

	d := send(t, env, a, models.DirectTarget(b), "oops")
	send(t, env, a, models.DirectTarget(b), "fine")
	gm := send(t, env, a, models.GroupTarget(g.ID), "oops")

	require.NoError(t, env.messages.Delete(ctx, a, d.ID))
	require.NoError(t, env.messages.Delete(ctx, a, gm.ID))

	assert.Equal(t, int64(1), unread(t, env, b, models.DirectTarget(a)))
	assert.Equal(t, int64(0), unread(t, env, c, models.GroupTarget(g.ID)))
}

func TestLedger_InvalidTargets(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a := users[0]
	ctx := context.Background()

	_, err := env.ledger.UnreadCount(ctx, a, models.Target{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = env.ledger.UnreadCount(ctx, a, models.DirectTarget(a))
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = env.ledger.MarkRead(ctx, a, models.GroupTarget(uuid.New()))
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)
}

func TestLedger_MarkReadPublishesOnOwnTopic(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(2)
	a, b := users[0], users[1]
	env.MakeFriends(a, b)
	ctx := context.Background()

	send(t, env, a, models.DirectTarget(b), "hi")
	sub := env.bus.Subscribe(events.DirectReadTopic(b, a))
	defer sub.Close()

	_, err := env.ledger.MarkRead(ctx, b, models.DirectTarget(a))
	require.NoError(t, err)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindDirectRead, got[0].Kind)
	var rc events.ReadChanged
	require.NoError(t, got[0].Decode(&rc))
	assert.Equal(t, b, rc.OwnerID)
	assert.Equal(t, int64(0), rc.Unread)
}

func TestLedger_ListConversations(t *testing.T) {
	env := newTestEnv(t)
	users := env.Users(3)
	a, b, c := users[0], users[1], users[2]
	env.MakeFriends(a, b)
	env.MakeFriends(a, c)
	g := env.CreateGroup(b, a)
	ctx := context.Background()

	send(t, env, b, models.DirectTarget(a), "direct")
	env.Clock.Advance(time.Second)
	send(t, env, b, models.GroupTarget(g.ID), "group")

	convs, err := env.ledger.ListConversations(ctx, a)
	require.NoError(t, err)
	require.Len(t, convs, 2, "the empty conversation with c is not listed")

	assert.Equal(t, models.GroupConversationID(g.ID), convs[0].ConversationID)
	assert.Equal(t, "test group", convs[0].Title)
	assert.Equal(t, int64(1), convs[0].Unread)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "group", convs[0].LastMessage.Body)

	assert.Equal(t, models.DirectConversationID(a, b), convs[1].ConversationID)
	require.NotNil(t, convs[1].PeerID)
	assert.Equal(t, b, *convs[1].PeerID)
	assert.Equal(t, int64(1), convs[1].Unread)
}
