package fanout

import (
	"context"
	"sync"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
)

// Sequencer hands out contiguous per-topic sequence numbers starting at 1.
type Sequencer interface {
	Next(ctx context.Context, topic string) (uint64, error)
	Current(ctx context.Context, topic string) (uint64, error)
}

// MemorySequencer keeps counters in process memory.
type MemorySequencer struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{seqs: make(map[string]uint64)}
}

func (s *MemorySequencer) Next(_ context.Context, topic string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[topic]++
	return s.seqs[topic], nil
}

func (s *MemorySequencer) Current(_ context.Context, topic string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[topic], nil
}

// RedisSequencer shares counters between instances with INCR.
type RedisSequencer struct {
	redis *cache.RedisCache
}

func NewRedisSequencer(redis *cache.RedisCache) *RedisSequencer {
	return &RedisSequencer{redis: redis}
}

func seqKey(topic string) string { return "fanout:seq:" + topic }

func (s *RedisSequencer) Next(ctx context.Context, topic string) (uint64, error) {
	n, err := s.redis.Incr(ctx, seqKey(topic))
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *RedisSequencer) Current(ctx context.Context, topic string) (uint64, error) {
	n, err := s.redis.GetInt(ctx, seqKey(topic))
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
