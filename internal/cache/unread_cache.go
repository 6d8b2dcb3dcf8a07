package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	UnreadCountTTL = 1 * time.Minute
	// unreadGenTTL outlives any count written under the generation.
	unreadGenTTL = 24 * time.Hour
)

// UnreadCache caches per-user unread counts. Counts are stored under a
// generation that Invalidate bumps, so a count computed before an
// invalidation is written where no later Get looks. A nil cache (or one
// without Redis) is valid and always misses.
type UnreadCache struct {
	redis *RedisCache
}

func NewUnreadCache(redis *RedisCache) *UnreadCache {
	return &UnreadCache{redis: redis}
}

func unreadGenKey(ownerID uuid.UUID, conversationID string) string {
	return fmt.Sprintf("unread-gen:%s:%s", ownerID, conversationID)
}

func unreadKey(ownerID uuid.UUID, conversationID string, gen int64) string {
	return fmt.Sprintf("unread:%s:%s:%d", ownerID, conversationID, gen)
}

// Get returns the cached count and the generation it was looked up under.
// Pass gen to Set when filling a miss. gen is negative when the generation
// could not be read; Set ignores such writes.
func (uc *UnreadCache) Get(ctx context.Context, ownerID uuid.UUID, conversationID string) (count, gen int64, ok bool) {
	if uc == nil || uc.redis == nil {
		return 0, -1, false
	}
	gen, err := uc.redis.GetInt(ctx, unreadGenKey(ownerID, conversationID))
	if err != nil {
		return 0, -1, false
	}
	data, err := uc.redis.Get(ctx, unreadKey(ownerID, conversationID, gen))
	if err != nil || data == nil {
		return 0, gen, false
	}

	if err := msgpack.Unmarshal(data, &count); err != nil {
		return 0, gen, false
	}
	return count, gen, true
}

func (uc *UnreadCache) Set(ctx context.Context, ownerID uuid.UUID, conversationID string, gen, count int64) error {
	if uc == nil || uc.redis == nil || gen < 0 {
		return nil
	}
	data, err := msgpack.Marshal(count)
	if err != nil {
		return err
	}
	return uc.redis.Set(ctx, unreadKey(ownerID, conversationID, gen), data, UnreadCountTTL)
}

// Invalidate moves each owner to a new generation.
func (uc *UnreadCache) Invalidate(ctx context.Context, conversationID string, owners ...uuid.UUID) error {
	if uc == nil || uc.redis == nil {
		return nil
	}
	for _, o := range owners {
		key := unreadGenKey(o, conversationID)
		if _, err := uc.redis.Incr(ctx, key); err != nil {
			return err
		}
		if err := uc.redis.Expire(ctx, key, unreadGenTTL); err != nil {
			return err
		}
	}
	return nil
}
