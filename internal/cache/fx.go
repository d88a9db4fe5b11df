package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/rentflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultStoreTTL = 5 * time.Minute

var Module = fx.Module("cache",
	fx.Provide(NewStore),
)

// NewStore selects the backend from CACHE_BACKEND.
func NewStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case "", BackendMemory:
		log.Info("cache backend selected", zap.String("backend", BackendMemory))
		return NewMemoryStore(defaultStoreTTL), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
				}
				log.Info("cache backend selected",
					zap.String("backend", BackendRedis),
					zap.String("addr", cfg.RedisAddr),
				)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return NewRedisStore(client, cfg.AppName+":"), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}
