package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// NewLocker returns the Redis slot locker, or a no-op locker when Redis is
// not configured or unreachable. Double booking is still rejected by the
// database, so the service keeps running without Redis.
func NewLocker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (Locker, *redis.Client) {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("redis not configured, slot locks disabled")
		return NewNoopLocker(), nil
	}

	rdb, err := NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, slot locks disabled")
		return NewNoopLocker(), nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Dur("lock_ttl", cfg.LockTTL).Msg("connected to redis")
	return NewRedisSlotLocker(rdb, cfg.LockTTL), rdb
}
