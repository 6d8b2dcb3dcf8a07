package service

import (
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/testutil"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
)

type testEnv struct {
	*testutil.TestHelper
	bus         *fanout.Bus
	friendships *FriendshipService
	ledger      *LedgerService
	presence    *PresenceService
	messages    *MessageService
	groups      *GroupService
	sync        *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	h := testutil.NewTestHelper(t)
	bus := fanout.NewBus(fanout.Options{SubscriberBuffer: 256, Now: h.Clock.Now})

	env := &testEnv{
		TestHelper:  h,
		bus:         bus,
		friendships: NewFriendshipService(h.Store, nil, bus, nil),
		ledger:      NewLedgerService(h.Store, nil, bus, nil),
		presence:    NewPresenceService(h.Store, nil, 0, bus, nil),
		messages:    NewMessageService(h.Store, nil, MessageConfig{}, bus, nil),
		groups:      NewGroupService(h.Store, nil, bus, nil),
	}
	env.ledger.Now = h.Clock.Now
	env.presence.Now = h.Clock.Now
	env.messages.Now = h.Clock.Now
	env.sync = NewSyncService(h.Store, env.friendships, env.ledger, env.presence, env.messages, env.groups)
	return env
}

// drain collects whatever is buffered on sub without waiting for more.
func drain(sub *fanout.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}
