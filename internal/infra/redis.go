package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the client built by NewRedis. Zero values keep the
// go-redis defaults, except PingTimeout which defaults to 5s.
type RedisOptions struct {
	PoolSize    int
	PingTimeout time.Duration
}

// NewRedis creates and validates a go-redis client connection.
// An empty URL returns a nil client: callers fall back to in-process locks
// and skip movement notifications.
func NewRedis(redisURL string, o RedisOptions) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), o.PingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
