package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one counter key per identity per window, using the
// INCR + EXPIRE-on-first-hit pattern so the window starts at the first
// request and every increment stays atomic.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.rdb.TxPipeline()

	incr := pipe.Incr(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	_, err := pipe.Exec(ctx)

	if err != nil {
		return 0, 0, err
	}

	count := incr.Val()
	ttl := ttlCmd.Val()

	// First hit in this window: the key has no expiry yet, set it. A key
	// left over without TTL (eg. crash between INCR and EXPIRE) is also
	// healed here rather than counting forever.
	if ttl < 0 {
		ttl = window

		err = s.rdb.Expire(ctx, key, window).Err()

		if err != nil {
			return 0, 0, err
		}
	}

	return count, ttl, nil
}
