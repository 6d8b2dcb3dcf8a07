package service

import (
	"context"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_HeartbeatsNeverRegress(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	now := env.Clock.Now()
	env.presence.Heartbeat(ctx, u, now)
	env.presence.Heartbeat(ctx, u, now.Add(-2*time.Minute))

	st := env.presence.Status(ctx, u)
	require.NotNil(t, st.LastSeen)
	assert.True(t, st.LastSeen.Equal(dbTime(now)))
}

func TestPresence_FutureHeartbeatIsClamped(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	env.presence.Heartbeat(ctx, u, env.Clock.Now().Add(time.Hour))
	st := env.presence.Status(ctx, u)
	require.NotNil(t, st.LastSeen)
	assert.True(t, st.LastSeen.Equal(dbTime(env.Clock.Now())))

	// a skewed client cannot keep itself online past the window
	env.Clock.Advance(models.DefaultPresenceWindow)
	assert.Equal(t, models.LivenessOffline, env.presence.Liveness(ctx, u))
}

func TestPresence_LivenessWindowBoundary(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	assert.Equal(t, models.LivenessOffline, env.presence.Liveness(ctx, u), "no record")

	start := env.Clock.Now()
	env.presence.Heartbeat(ctx, u, start)

	env.Clock.Set(start.Add(models.DefaultPresenceWindow - time.Microsecond))
	assert.Equal(t, models.LivenessOnline, env.presence.Liveness(ctx, u))

	env.Clock.Set(start.Add(models.DefaultPresenceWindow))
	assert.Equal(t, models.LivenessOffline, env.presence.Liveness(ctx, u))
}

func TestPresence_DeclaredStatus(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	_, err := env.presence.SetDeclaredStatus(ctx, u, "busy")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)

	env.presence.Heartbeat(ctx, u, env.Clock.Now())

	tests := []struct {
		status models.DeclaredStatus
		want   models.Liveness
	}{
		{models.DeclaredAway, models.LivenessAway},
		{models.DeclaredOffline, models.LivenessOffline},
		{models.DeclaredOnline, models.LivenessOnline},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			view, err := env.presence.SetDeclaredStatus(ctx, u, tt.status)
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), view.Liveness)
			assert.Equal(t, tt.want, env.presence.Liveness(ctx, u))
		})
	}
}

func TestPresence_HeartbeatFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]

	env.Store.Fail("Presence.Touch", assert.AnError)
	assert.NotPanics(t, func() {
		l := env.presence.Heartbeat(context.Background(), u, env.Clock.Now())
		assert.Equal(t, models.LivenessOffline, l)
	})
}

func TestPresence_TransitionsArePublished(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	sub := env.bus.Subscribe(events.PresenceTopic(u))
	defer sub.Close()

	env.presence.Heartbeat(ctx, u, env.Clock.Now())
	env.Clock.Advance(time.Minute)
	env.presence.Heartbeat(ctx, u, env.Clock.Now()) // still online, no event

	env.Clock.Advance(models.DefaultPresenceWindow + time.Second)
	n, err := env.presence.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a second sweep does not repeat the transition
	n, err = env.presence.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got := drain(sub)
	require.Len(t, got, 2)
	var first, last events.PresenceChanged
	require.NoError(t, got[0].Decode(&first))
	require.NoError(t, got[1].Decode(&last))
	assert.Equal(t, string(models.LivenessOnline), first.Liveness)
	assert.Equal(t, string(models.LivenessOffline), last.Liveness)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
}

func TestPresence_SweepSkipsUserSeenAgain(t *testing.T) {
	env := newTestEnv(t)
	u := env.Users(1)[0]
	ctx := context.Background()

	sub := env.bus.Subscribe(events.PresenceTopic(u))
	defer sub.Close()

	env.presence.Heartbeat(ctx, u, env.Clock.Now())
	env.Clock.Advance(models.DefaultPresenceWindow + time.Second)

	// the heartbeat lands between listing and expiring
	env.presence.Heartbeat(ctx, u, env.Clock.Now())
	published, err := env.presence.expire(ctx, u, env.Clock.Now())
	require.NoError(t, err)
	assert.False(t, published)

	got := drain(sub)
	require.Len(t, got, 2, "online, then online again after the gap")
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.Equal(t, models.LivenessOnline, env.presence.Liveness(ctx, u))
}
