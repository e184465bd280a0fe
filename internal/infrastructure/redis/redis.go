// Package redis opens the Redis connection used by the latest-reading mirror.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
)

const defaultPingTimeout = 5 * time.Second

// ErrDisabled indicates the mirror is turned off in configuration.
var ErrDisabled = errors.New("redis: disabled in configuration")

// Connect creates a client for cfg and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}
