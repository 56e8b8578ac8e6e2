package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agrotic/internal/apierror"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockPrefix = "agrotic:lock:"

// ErrLockNotObtained is returned when another instance holds the key past the wait window.
var ErrLockNotObtained = apierror.Conflict("recurso ocupado, intente nuevamente")

// RedisLocker serializes inventory mutations on the same key across instances.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Lock blocks until key is obtained or ttl elapses. The returned func releases it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, lockPrefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtener lock %s: %w", key, err)
	}

	return func() {
		// Release uses a fresh context: the request context may already be done.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		}
	}, nil
}
