package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks the subscribe protocol and serves /api/sync from a
// fakeFetcher.
type fakeServer struct {
	t        *testing.T
	fetch    *fakeFetcher
	silent   bool
	wsOff    bool
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	subs  chan []string
}

func newFakeServer(t *testing.T, fetch *fakeFetcher) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{t: t, fetch: fetch, subs: make(chan []string, 4)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/sync":
		snap, err := fs.fetch.Resync(r.Context(), r.URL.Query().Get("topic"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found","code":"NOT_FOUND"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(snap)
	case "/ws":
		if fs.wsOff {
			http.NotFound(w, r)
			return
		}
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		var frame events.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		var p events.TopicsPayload
		_ = json.Unmarshal(frame.Payload, &p)
		select {
		case fs.subs <- p.Topics:
		default:
		}
		if fs.silent {
			return
		}
		ack, _ := events.NewFrame(events.FrameSubscribed, events.SubscribedPayload{Topics: p.Topics})
		_ = fs.write(conn, ack)
	default:
		http.NotFound(w, r)
	}
}

func (fs *fakeServer) write(conn *websocket.Conn, f events.Frame) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return conn.WriteJSON(f)
}

// dropAll closes every open connection.
func (fs *fakeServer) dropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		_ = c.Close()
	}
}

func (fs *fakeServer) push(ev events.Event) {
	fs.t.Helper()
	frame, err := events.NewFrame(events.FrameEvent, ev)
	require.NoError(fs.t, err)
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	require.NoError(fs.t, fs.write(conn, frame))
}

func runSession(t *testing.T, s *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSessionAppliesEvents(t *testing.T) {
	owner := uuid.New()
	conv := newConversation(t, owner, uuid.New(), 3)
	fetch := newFakeFetcher()
	fetch.set(t, conv.topic, 0, events.ConversationSnapshot{ConversationID: conv.convID, Messages: []events.MessageView{}})
	fs, srv := newFakeServer(t, fetch)

	cache := NewCache(owner, NewAPI(srv.URL, "token"))
	s := NewSession(SessionConfig{URL: srv.URL, Token: "token", Topics: []string{conv.topic}}, cache)
	runSession(t, s)

	select {
	case topics := <-fs.subs:
		assert.Equal(t, []string{conv.topic}, topics)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame")
	}
	require.Eventually(t, func() bool { return s.Connected() && len(cache.Pending()) == 0 }, 2*time.Second, 10*time.Millisecond)

	for _, ev := range conv.events {
		fs.push(ev)
	}
	require.Eventually(t, func() bool { return cache.LastSeq(conv.topic) == 3 }, 2*time.Second, 10*time.Millisecond)
	v, _ := cache.Conversation(conv.topic)
	assert.Len(t, v.Messages, 3)
	assert.Equal(t, int64(3), v.Unread)
}

func TestSessionReloadsTopicsAfterReconnect(t *testing.T) {
	owner := uuid.New()
	peer := uuid.New()
	topic := events.FriendshipTopic(owner, peer)
	fetch := newFakeFetcher()
	fetch.set(t, topic, 5, events.FriendshipChanged{Status: "pending", RequesterID: peer})
	fs, srv := newFakeServer(t, fetch)

	outcomes := make(chan Outcome, 8)
	cache := NewCache(owner, NewAPI(srv.URL, "token"))
	s := NewSession(SessionConfig{
		URL:            srv.URL,
		Token:          "token",
		Topics:         []string{topic},
		PollInterval:   20 * time.Millisecond,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		OnEvent:        func(_ events.Event, o Outcome) { outcomes <- o },
	}, cache)
	runSession(t, s)

	<-fs.subs
	require.Eventually(t, func() bool { return s.Connected() && cache.LastSeq(topic) == 5 }, 2*time.Second, 10*time.Millisecond)

	// the server restarts its stream and is briefly unable to serve
	// snapshots while the connection drops
	fetch.set(t, topic, 1, events.FriendshipChanged{Status: "accepted", RequesterID: peer})
	fetch.mu.Lock()
	fetch.errs[topic] = errors.New("restarting")
	fetch.mu.Unlock()
	fs.dropAll()

	select {
	case <-fs.subs:
	case <-time.After(2 * time.Second):
		t.Fatal("no resubscribe")
	}
	require.Eventually(t, s.Connected, 2*time.Second, 10*time.Millisecond)

	raw, _ := json.Marshal(events.FriendshipChanged{Status: "accepted", RequesterID: peer})
	fs.push(events.Event{Topic: topic, Kind: events.KindFriendshipChanged, Seq: 1, Payload: raw})
	select {
	case o := <-outcomes:
		assert.Equal(t, Discarded, o)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Equal(t, []string{topic}, cache.Pending())

	fetch.mu.Lock()
	delete(fetch.errs, topic)
	fetch.mu.Unlock()
	require.NoError(t, cache.ResyncPending(context.Background()))
	f, ok := cache.Friendship(topic)
	require.True(t, ok)
	assert.Equal(t, "accepted", f.Status)
	assert.Equal(t, uint64(1), cache.LastSeq(topic))
}

func TestSessionPollsOnSubscribeTimeout(t *testing.T) {
	owner := uuid.New()
	peer := uuid.New()
	topic := events.PresenceTopic(peer)
	fetch := newFakeFetcher()
	fetch.set(t, topic, 2, events.PresenceChanged{UserID: peer, Liveness: "away", DeclaredStatus: "away"})
	fs, srv := newFakeServer(t, fetch)
	fs.silent = true

	cache := NewCache(owner, NewAPI(srv.URL, "token"))
	s := NewSession(SessionConfig{
		URL:              srv.URL,
		Token:            "token",
		Topics:           []string{topic},
		SubscribeTimeout: 100 * time.Millisecond,
		PollInterval:     20 * time.Millisecond,
		InitialBackoff:   50 * time.Millisecond,
		MaxBackoff:       100 * time.Millisecond,
	}, cache)
	runSession(t, s)

	require.Eventually(t, func() bool { return s.Polls() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.Connected())
	p, ok := cache.Presence(topic)
	require.True(t, ok)
	assert.Equal(t, "away", p.Liveness)
	assert.Equal(t, uint64(2), cache.LastSeq(topic))
}

func TestSessionPollsWhenWebSocketUnavailable(t *testing.T) {
	owner := uuid.New()
	group := uuid.New()
	topic := events.GroupRosterTopic(group)
	fetch := newFakeFetcher()
	fetch.set(t, topic, 7, events.RosterChanged{GroupID: group, Members: []uuid.UUID{owner}})
	fs, srv := newFakeServer(t, fetch)
	fs.wsOff = true

	cache := NewCache(owner, NewAPI(srv.URL, "token"))
	s := NewSession(SessionConfig{
		URL:            srv.URL,
		Token:          "token",
		Topics:         []string{topic},
		PollInterval:   20 * time.Millisecond,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}, cache)
	runSession(t, s)

	require.Eventually(t, func() bool { return s.Polls() >= 2 }, 2*time.Second, 10*time.Millisecond)
	r, ok := cache.Roster(topic)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{owner}, r.Members)
}

func TestAPIErrors(t *testing.T) {
	_, srv := newFakeServer(t, newFakeFetcher())
	api := NewAPI(srv.URL, "token")

	_, err := api.Resync(context.Background(), "presence:nobody")
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}
