package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// PresenceCache mirrors presence records for liveness lookups. The database
// stays canonical; entries expire after the presence window.
type PresenceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

func NewPresenceCache(redis *RedisCache, ttl time.Duration) *PresenceCache {
	return &PresenceCache{redis: redis, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (pc *PresenceCache) Get(ctx context.Context, userID uuid.UUID) (*models.PresenceRecord, bool) {
	if pc == nil || pc.redis == nil {
		return nil, false
	}
	data, err := pc.redis.Get(ctx, presenceKey(userID))
	if err != nil || data == nil {
		return nil, false
	}

	var rec models.PresenceRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// Set stores rec unless the cached copy has a later LastSeen. The check and
// write are not atomic; a lost race only leaves an older copy until expiry.
func (pc *PresenceCache) Set(ctx context.Context, rec *models.PresenceRecord) error {
	if pc == nil || pc.redis == nil || rec == nil {
		return nil
	}
	if cur, ok := pc.Get(ctx, rec.UserID); ok && cur.LastSeen.After(rec.LastSeen) && cur.DeclaredStatus == rec.DeclaredStatus {
		return nil
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return pc.redis.Set(ctx, presenceKey(rec.UserID), data, pc.ttl)
}

func (pc *PresenceCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.Delete(ctx, presenceKey(userID))
}
