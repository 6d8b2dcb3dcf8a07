// Package fanout is the realtime publish/subscribe layer. Publishing never
// blocks on subscribers, delivery is ordered within a topic, and nothing is
// stored: a subscriber that misses events recovers through a resync.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks . Publisher

// Publisher is the write side used by services.
type Publisher interface {
	// Publish assigns the next sequence of topic.
	Publish(ctx context.Context, topic, kind string, payload interface{}) error
	// PublishSeq publishes with a sequence owned by the caller, such as a
	// conversation's committed message sequence.
	PublishSeq(ctx context.Context, topic, kind string, seq uint64, payload interface{}) error
}

// Relay carries events between instances. Events sent through a relay come
// back to every instance, including the sender, via the deliver callback
// given to Run.
type Relay interface {
	Send(ctx context.Context, ev events.Event) error
	Run(ctx context.Context, deliver func(events.Event)) error
}

type Options struct {
	Sequencer        Sequencer
	Relay            Relay
	SubscriberBuffer int
	ReorderWindow    time.Duration
	Logger           *zap.Logger
	Now              func() time.Time
}

type Bus struct {
	seq    Sequencer
	relay  Relay
	buffer int
	window time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	ordMu    sync.Mutex
	orderers map[string]*orderer

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBus(opts Options) *Bus {
	b := &Bus{
		seq:      opts.Sequencer,
		relay:    opts.Relay,
		buffer:   opts.SubscriberBuffer,
		window:   opts.ReorderWindow,
		log:      logger.OrNop(opts.Logger),
		now:      opts.Now,
		subs:     make(map[string]map[*Subscription]struct{}),
		orderers: make(map[string]*orderer),
	}
	if b.seq == nil {
		b.seq = NewMemorySequencer()
	}
	if b.buffer <= 0 {
		b.buffer = 64
	}
	if b.window <= 0 {
		b.window = 500 * time.Millisecond
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Run consumes the relay until ctx ends, and prunes idle per-topic state.
// Without a relay it only prunes.
func (b *Bus) Run(ctx context.Context) error {
	go b.pruneLoop(ctx)
	if b.relay == nil {
		<-ctx.Done()
		return nil
	}
	return b.relay.Run(ctx, b.Deliver)
}

func (b *Bus) Publish(ctx context.Context, topic, kind string, payload interface{}) error {
	seq, err := b.seq.Next(ctx, topic)
	if err != nil {
		return err
	}
	return b.PublishSeq(ctx, topic, kind, seq, payload)
}

func (b *Bus) PublishSeq(ctx context.Context, topic, kind string, seq uint64, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := events.Event{Topic: topic, Kind: kind, Seq: seq, Payload: raw, At: b.now()}
	b.published.Add(1)

	if b.relay != nil {
		return b.relay.Send(ctx, ev)
	}
	b.Deliver(ev)
	return nil
}

// CurrentSeq is the last sequence assigned on topic by the sequencer.
func (b *Bus) CurrentSeq(ctx context.Context, topic string) (uint64, error) {
	return b.seq.Current(ctx, topic)
}

// Deliver routes an event to local subscribers in topic order.
func (b *Bus) Deliver(ev events.Event) {
	b.orderer(ev.Topic).push(ev)
}

func (b *Bus) orderer(topic string) *orderer {
	b.ordMu.Lock()
	defer b.ordMu.Unlock()
	o, ok := b.orderers[topic]
	if !ok {
		o = newOrderer(b.window, b.dispatch)
		b.orderers[topic] = o
	}
	return o
}

func (b *Bus) dispatch(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.log.Debug("fanout subscriber unreachable, event dropped",
				zap.String("topic", ev.Topic),
				zap.Uint64("seq", ev.Seq))
		}
	}
}

func (b *Bus) Subscribe(topics ...string) *Subscription {
	ch := make(chan events.Event, b.buffer)
	sub := &Subscription{
		bus:    b,
		ch:     ch,
		C:      ch,
		topics: make(map[string]struct{}),
	}
	sub.Add(topics...)
	return sub
}

func (b *Bus) attach(sub *Subscription, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		set, ok := b.subs[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.subs[t] = set
		}
		set[sub] = struct{}{}
	}
}

func (b *Bus) detach(sub *Subscription, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(sub, topics)
}

func (b *Bus) detachLocked(sub *Subscription, topics []string) {
	for _, t := range topics {
		if set, ok := b.subs[t]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, t)
			}
		}
	}
}

func (b *Bus) closeSubscription(sub *Subscription, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(sub, topics)
	close(sub.ch)
}

// Stats reports counters since start.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// SubscriberCount reports how many subscriptions hold topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.pruneOrderers(now.Add(-5 * time.Minute))
		}
	}
}

func (b *Bus) pruneOrderers(idleBefore time.Time) {
	b.ordMu.Lock()
	defer b.ordMu.Unlock()
	for topic, o := range b.orderers {
		if o.idleSince(idleBefore) {
			delete(b.orderers, topic)
		}
	}
}
