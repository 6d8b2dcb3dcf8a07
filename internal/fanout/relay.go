package fanout

import (
	"context"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const RelayChannel = "fanout:events"

// RedisRelay broadcasts events to every instance over one pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisRelay(client *redis.Client, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: RelayChannel, log: logger.OrNop(log)}
}

func (r *RedisRelay) Send(ctx context.Context, ev events.Event) error {
	data, err := msgpack.Marshal(&ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Run(ctx context.Context, deliver func(events.Event)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev events.Event
			if err := msgpack.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("fanout relay: bad frame", zap.Error(err))
				continue
			}
			deliver(ev)
		}
	}
}
