package fanout

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	rc, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Printf("redis container unavailable, redis tests will be skipped: %v", err)
		os.Exit(m.Run())
	}

	uri, err := rc.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		log.Fatalf("failed to parse redis url: %v", err)
	}
	testRedis = redis.NewClient(opts)

	code := m.Run()

	_ = testRedis.Close()
	if err := rc.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testRedis == nil {
		t.Skip("redis is not available")
	}
	return testRedis
}

func TestRedisSequencer(t *testing.T) {
	seq := NewRedisSequencer(cache.NewRedisCacheFromClient(newRedis(t)))
	ctx := context.Background()
	topic := "presence:" + uuid.NewString()

	cur, err := seq.Current(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cur)

	for want := uint64(1); want <= 3; want++ {
		n, err := seq.Next(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	cur, err = seq.Current(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cur)
}

func TestRedisRelay_RoundTrip(t *testing.T) {
	relay := NewRedisRelay(newRedis(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.Event, 16)
	go func() { _ = relay.Run(ctx, func(ev events.Event) { got <- ev }) }()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sent := events.Event{
		Topic:   "inbox:" + uuid.NewString(),
		Kind:    events.KindMessageReceived,
		Seq:     7,
		Payload: json.RawMessage(`{"conversation_id":"d:x","unread":2}`),
		At:      at,
	}

	// the subscription is live once a sent frame comes back
	var ev events.Event
	require.Eventually(t, func() bool {
		if err := relay.Send(ctx, sent); err != nil {
			return false
		}
		select {
		case ev = <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, sent.Topic, ev.Topic)
	assert.Equal(t, sent.Kind, ev.Kind)
	assert.Equal(t, sent.Seq, ev.Seq)
	assert.JSONEq(t, string(sent.Payload), string(ev.Payload))
	assert.True(t, at.Equal(ev.At))
}

func TestRedisRelay_BusesShareEvents(t *testing.T) {
	client := newRedis(t)
	seq := NewRedisSequencer(cache.NewRedisCacheFromClient(client))
	a := NewBus(Options{Sequencer: seq, Relay: NewRedisRelay(client, nil)})
	b := NewBus(Options{Sequencer: seq, Relay: NewRedisRelay(client, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()
	go func() { _ = b.Run(ctx) }()

	topic := "group-roster:" + uuid.NewString()
	sub := b.Subscribe(topic)
	defer sub.Close()

	var ev events.Event
	require.Eventually(t, func() bool {
		if err := a.Publish(ctx, topic, events.KindRosterChanged, map[string]int{"n": 1}); err != nil {
			return false
		}
		select {
		case ev = <-sub.C:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, topic, ev.Topic)
	cur, err := b.CurrentSeq(ctx, topic)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cur, ev.Seq)
}
