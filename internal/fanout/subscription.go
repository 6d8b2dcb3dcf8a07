package fanout

import (
	"sync"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
)

// Subscription is a cancellable handle on a set of topics. Events arrive on
// C; when the buffer is full further events for this subscriber are
// dropped, never queued.
type Subscription struct {
	bus *Bus
	ch  chan events.Event
	C   <-chan events.Event

	mu     sync.Mutex
	topics map[string]struct{}
	closed bool
}

// Add and Remove hold s.mu while touching the bus so they cannot interleave
// with Close. Lock order is s.mu, then the bus lock.
func (s *Subscription) Add(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	added := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := s.topics[t]; !ok {
			s.topics[t] = struct{}{}
			added = append(added, t)
		}
	}
	s.bus.attach(s, added)
}

func (s *Subscription) Remove(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, t := range topics {
		delete(s.topics, t)
	}
	s.bus.detach(s, topics)
}

func (s *Subscription) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Subscription) Has(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[topic]
	return ok
}

// Close detaches every topic and closes C. It is safe to call twice.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.topics = nil
	s.bus.closeSubscription(s, topics)
}
