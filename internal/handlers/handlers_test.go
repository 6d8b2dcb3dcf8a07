package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesRequireAuthentication(t *testing.T) {
	a := newTestApp(t)

	var body httpx.ErrorResponse
	status := a.do(t, uuid.Nil, http.MethodGet, "/api/friends", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body.Code)
}

func TestFriendRequestFlow(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(2)
	alice, bob := users[0], users[1]

	var created events.FriendshipChanged
	status := a.do(t, alice, http.MethodPost, "/api/friends/requests", FriendRequestRequest{To: bob}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", created.Status)

	var errBody httpx.ErrorResponse
	status = a.do(t, bob, http.MethodPost, "/api/friends/requests", FriendRequestRequest{To: alice}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_EXISTS", errBody.Code)

	status = a.do(t, alice, http.MethodPost, "/api/friends/requests/"+bob.String()+"/respond", RespondRequest{Accept: true}, &errBody)
	assert.Equal(t, http.StatusForbidden, status)

	var state struct {
		State models.FriendshipState `json:"state"`
	}
	status = a.do(t, bob, http.MethodPost, "/api/friends/requests/"+alice.String()+"/respond", RespondRequest{Accept: true}, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StateAccepted, state.State)

	status = a.do(t, alice, http.MethodGet, "/api/friends/"+bob.String()+"/status", nil, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StateAccepted, state.State)

	var friends struct {
		Friends []uuid.UUID `json:"friends"`
	}
	a.do(t, bob, http.MethodGet, "/api/friends", nil, &friends)
	assert.Equal(t, []uuid.UUID{alice}, friends.Friends)

	status = a.do(t, alice, http.MethodDelete, "/api/friends/"+bob.String(), nil, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StateNone, state.State)
}

func TestSendReadAndUnread(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(3)
	alice, bob, eve := users[0], users[1], users[2]
	a.MakeFriends(alice, bob)

	var sent SendMessageResponse
	status := a.do(t, alice, http.MethodPost, "/api/messages", SendMessageRequest{PeerID: bob, Body: "hi", ClientID: "c-1"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(1), sent.Message.Seq)
	assert.False(t, sent.Duplicate)

	status = a.do(t, alice, http.MethodPost, "/api/messages", SendMessageRequest{PeerID: bob, Body: "hi", ClientID: "c-1"}, &sent)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, sent.Duplicate)

	var errBody httpx.ErrorResponse
	status = a.do(t, eve, http.MethodPost, "/api/messages", SendMessageRequest{PeerID: bob, Body: "hi"}, &errBody)
	assert.Equal(t, http.StatusForbidden, status)

	var unread struct {
		Unread int64 `json:"unread"`
	}
	path := "/api/conversations/direct/" + alice.String()
	a.do(t, bob, http.MethodGet, path+"/unread", nil, &unread)
	assert.Equal(t, int64(1), unread.Unread)

	var read events.ReadChanged
	status = a.do(t, bob, http.MethodPost, path+"/read", nil, &read)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(0), read.Unread)

	a.do(t, bob, http.MethodGet, path+"/unread", nil, &unread)
	assert.Equal(t, int64(0), unread.Unread)

	var history struct {
		Messages []events.MessageView `json:"messages"`
	}
	a.do(t, bob, http.MethodGet, path+"/messages?limit=10", nil, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Body)
}

func TestBadConversationTarget(t *testing.T) {
	a := newTestApp(t)
	user := a.Users(1)[0]

	tests := []struct {
		name string
		path string
	}{
		{"unknown kind", "/api/conversations/channel/" + uuid.NewString() + "/unread"},
		{"bad id", "/api/conversations/direct/nope/unread"},
		{"self", "/api/conversations/direct/" + user.String() + "/unread"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body httpx.ErrorResponse
			status := a.do(t, user, http.MethodGet, tt.path, nil, &body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_ARGUMENT", body.Code)
		})
	}
}

func TestDeleteMessage(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(2)
	a.MakeFriends(users[0], users[1])

	var sent SendMessageResponse
	a.do(t, users[0], http.MethodPost, "/api/messages", SendMessageRequest{PeerID: users[1], Body: "oops"}, &sent)
	path := fmt.Sprintf("/api/messages/%d", sent.Message.ID)

	assert.Equal(t, http.StatusForbidden, a.do(t, users[1], http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNoContent, a.do(t, users[0], http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, users[0], http.MethodDelete, "/api/messages/abc", nil, nil))
}

func TestPresenceRoutes(t *testing.T) {
	a := newTestApp(t)
	user := a.Users(1)[0]

	var hb struct {
		Liveness models.Liveness `json:"liveness"`
	}
	require.Equal(t, http.StatusOK, a.do(t, user, http.MethodPost, "/api/presence/heartbeat", nil, &hb))

	var view events.PresenceChanged
	status := a.do(t, user, http.MethodPut, "/api/presence/status", DeclaredStatusRequest{Status: models.DeclaredAway}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "away", view.DeclaredStatus)

	var errBody httpx.ErrorResponse
	status = a.do(t, user, http.MethodPut, "/api/presence/status", DeclaredStatusRequest{Status: "busy"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)

	require.Equal(t, http.StatusOK, a.do(t, user, http.MethodGet, "/api/presence/"+user.String(), nil, &view))
	assert.Equal(t, user, view.UserID)
}

func TestPresenceLookupIsLimitedToFriends(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(3)
	alice, bob, stranger := users[0], users[1], users[2]
	a.MakeFriends(alice, bob)

	var view events.PresenceChanged
	require.Equal(t, http.StatusOK, a.do(t, bob, http.MethodGet, "/api/presence/"+alice.String(), nil, &view))
	assert.Equal(t, alice, view.UserID)

	var errBody httpx.ErrorResponse
	status := a.do(t, stranger, http.MethodGet, "/api/presence/"+alice.String(), nil, &errBody)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", errBody.Code)
}

func TestGroupRoutes(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(3)
	admin, member, outsider := users[0], users[1], users[2]

	var g models.Group
	status := a.do(t, admin, http.MethodPost, "/api/groups", map[string]interface{}{"name": "club"}, &g)
	require.Equal(t, http.StatusCreated, status)
	base := "/api/groups/" + g.ID.String() + "/members"

	require.Equal(t, http.StatusCreated, a.do(t, admin, http.MethodPost, base, AddMemberRequest{UserID: member}, nil))
	assert.Equal(t, http.StatusConflict, a.do(t, admin, http.MethodPost, base, AddMemberRequest{UserID: member}, nil))
	assert.Equal(t, http.StatusForbidden, a.do(t, outsider, http.MethodPost, base, nil, nil))

	var members []models.GroupMember
	require.Equal(t, http.StatusOK, a.do(t, member, http.MethodGet, base, nil, &members))
	assert.Len(t, members, 2)

	var sent SendMessageResponse
	status = a.do(t, member, http.MethodPost, "/api/messages", SendMessageRequest{GroupID: g.ID, Body: "hello all"}, &sent)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, http.StatusNoContent, a.do(t, member, http.MethodDelete, base+"/"+member.String(), nil, nil))
	assert.Equal(t, http.StatusForbidden, a.do(t, member, http.MethodGet, "/api/conversations/group/"+g.ID.String()+"/unread", nil, nil))
}

func TestSyncRoute(t *testing.T) {
	a := newTestApp(t)
	users := a.Users(2)
	a.MakeFriends(users[0], users[1])

	var sent SendMessageResponse
	a.do(t, users[0], http.MethodPost, "/api/messages", SendMessageRequest{PeerID: users[1], Body: "x"}, &sent)

	topic := events.ConversationTopic(sent.Message.ConversationID)
	var snap events.Snapshot
	require.Equal(t, http.StatusOK, a.do(t, users[1], http.MethodGet, "/api/sync?topic="+topic, nil, &snap))
	assert.Equal(t, uint64(1), snap.Seq)

	outsider := uuid.New()
	assert.Equal(t, http.StatusForbidden, a.do(t, outsider, http.MethodGet, "/api/sync?topic="+topic, nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, users[0], http.MethodGet, "/api/sync?topic=bogus:1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, users[0], http.MethodGet, "/api/sync", nil, nil))
}
