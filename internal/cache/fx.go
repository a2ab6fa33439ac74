package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/quarterfind/quarterfind/internal/config"
)

var Module = fx.Module("cache",
	fx.Provide(NewUnlockedSetCache),
)

// NewUnlockedSetCache picks the cache backend from configuration. Redis is
// used when replicas must share invalidations; memory is the default.
func NewUnlockedSetCache(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) UnlockedSetCache {
	if cfg.CacheBackend != "redis" {
		return NewMemoryUnlockedCache(cfg.UnlockedTTL)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisUnlockedCache(client, log, cfg.UnlockedTTL)
}
