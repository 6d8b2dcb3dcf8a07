// Package service holds the coordination logic: friendships, the
// read-status ledger, presence, message routing, groups and resync.
// Every state change takes its topic sequence inside its transaction and is
// published to the fan-out bus after commit; publish failures are logged
// and never reach the caller.
package service

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicateKey)
}

// notifier publishes after commit. It detaches from the request context so
// a caller that already returned does not cancel the fan-out.
type notifier struct {
	pub fanout.Publisher
	log *zap.Logger
}

func newNotifier(pub fanout.Publisher, log *zap.Logger) notifier {
	return notifier{pub: pub, log: logger.OrNop(log)}
}

func (n notifier) publishSeq(ctx context.Context, topic, kind string, seq int64, payload interface{}) {
	if n.pub == nil {
		return
	}
	if err := n.pub.PublishSeq(context.WithoutCancel(ctx), topic, kind, uint64(seq), payload); err != nil {
		n.log.Warn("fanout publish failed", zap.String("topic", topic), zap.Int64("seq", seq), zap.Error(err))
	}
}

// flush publishes what o collected, in the order it was staged.
func (n notifier) flush(ctx context.Context, o *outbox) {
	for _, ev := range o.pending {
		n.publishSeq(ctx, ev.topic, ev.kind, ev.seq, ev.payload)
	}
}

// outbox collects the events of one transaction. Their sequences come from
// topic rows written in the same transaction and locked until it ends, so
// on every topic sequence order is commit order.
type outbox struct {
	pending []outgoing
}

type outgoing struct {
	topic   string
	kind    string
	seq     int64
	payload interface{}
}

// reserve takes the next sequence of topic. Payloads read from rows other
// writers also change should be built after reserve, under the topic lock.
func (o *outbox) reserve(ctx context.Context, tx repository.Store, topic string) (int64, error) {
	seq, err := tx.Sequences().Next(ctx, topic)
	if err != nil {
		return 0, errors.Wrap(err, "reserve topic sequence")
	}
	return seq, nil
}

func (o *outbox) add(topic, kind string, seq int64, payload interface{}) {
	o.pending = append(o.pending, outgoing{topic: topic, kind: kind, seq: seq, payload: payload})
}

func (o *outbox) stage(ctx context.Context, tx repository.Store, topic, kind string, payload interface{}) error {
	seq, err := o.reserve(ctx, tx, topic)
	if err != nil {
		return err
	}
	o.add(topic, kind, seq, payload)
	return nil
}

// dbTime normalizes t to the precision postgres stores.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
