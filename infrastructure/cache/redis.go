package cache

import (
	"context"
	"fmt"

	"multipost/infrastructure/logger"

	"github.com/redis/go-redis/v9"
)

// NewCache connects to redis and pings it. The client is returned even when the
// ping fails so callers can decide whether redis is required.
func NewCache(ctx context.Context, addr, username, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetLogger().WithField("addr", addr).WithField("error", err).Warn("Redis ping failed")
		return client, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}
