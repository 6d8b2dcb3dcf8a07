package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/handlers/ws"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type testApp struct {
	*testutil.TestHelper
	app      *fiber.App
	bus      *fanout.Bus
	hub      *ws.Hub
	messages *service.MessageService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	h := testutil.NewTestHelper(t)
	bus := fanout.NewBus(fanout.Options{SubscriberBuffer: 256})

	friendships := service.NewFriendshipService(h.Store, nil, bus, nil)
	ledger := service.NewLedgerService(h.Store, nil, bus, nil)
	presence := service.NewPresenceService(h.Store, nil, 0, bus, nil)
	messages := service.NewMessageService(h.Store, nil, service.MessageConfig{}, bus, nil)
	groups := service.NewGroupService(h.Store, nil, bus, nil)
	sync := service.NewSyncService(h.Store, friendships, ledger, presence, messages, groups)

	hub := ws.NewHub(bus, nil)
	t.Cleanup(hub.Close)

	app := fiber.New()
	Register(app, Handlers{
		Friendship:   NewFriendshipHandler(friendships),
		Message:      NewMessageHandler(messages),
		Conversation: NewConversationHandler(ledger, messages),
		Presence:     NewPresenceHandler(presence, sync),
		Group:        NewGroupHandler(groups),
		Sync:         NewSyncHandler(sync),
		WebSocket:    NewWebSocketHandler(hub, sync, presence, nil),
	}, RouteConfig{JWTSecret: testSecret})

	return &testApp{TestHelper: h, app: app, bus: bus, hub: hub, messages: messages}
}

// do sends an authenticated JSON request as user and decodes the response
// body into out when out is non-nil.
func (a *testApp) do(t *testing.T, user uuid.UUID, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(testSecret, user))
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
