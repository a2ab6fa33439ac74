package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UnlockedSetCache holds the per-user set of unlocked property ids used by
// the bulk search overlay. Entries are short-lived; a debit invalidates the
// user's entry immediately.
type UnlockedSetCache interface {
	Get(ctx context.Context, userID string) ([]string, bool)
	Set(ctx context.Context, userID string, ids []string)
	Invalidate(ctx context.Context, userID string)
}

type memoryUnlockedCache struct {
	inner Cache[string, []string]
	ttl   time.Duration
}

// NewMemoryUnlockedCache returns an in-process unlocked-set cache.
func NewMemoryUnlockedCache(ttl time.Duration) UnlockedSetCache {
	return &memoryUnlockedCache{inner: NewTTLCache[string, []string](), ttl: ttl}
}

func (c *memoryUnlockedCache) Get(_ context.Context, userID string) ([]string, bool) {
	return c.inner.Get(userID)
}

func (c *memoryUnlockedCache) Set(_ context.Context, userID string, ids []string) {
	c.inner.Set(userID, ids, c.ttl)
}

func (c *memoryUnlockedCache) Invalidate(_ context.Context, userID string) {
	c.inner.Delete(userID)
}

type redisUnlockedCache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

// NewRedisUnlockedCache returns an unlocked-set cache shared across replicas.
func NewRedisUnlockedCache(client *redis.Client, log *zap.Logger, ttl time.Duration) UnlockedSetCache {
	return &redisUnlockedCache{client: client, log: log.Named("cache.unlocked"), ttl: ttl}
}

func unlockedKey(userID string) string {
	return "unlocked:" + userID
}

func (c *redisUnlockedCache) Get(ctx context.Context, userID string) ([]string, bool) {
	raw, err := c.client.Get(ctx, unlockedKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("unlocked cache read failed", zap.Error(err))
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (c *redisUnlockedCache) Set(ctx context.Context, userID string, ids []string) {
	b, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, unlockedKey(userID), b, c.ttl).Err(); err != nil {
		c.log.Warn("unlocked cache write failed", zap.Error(err))
	}
}

func (c *redisUnlockedCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, unlockedKey(userID)).Err(); err != nil {
		c.log.Warn("unlocked cache invalidate failed", zap.Error(err))
	}
}
