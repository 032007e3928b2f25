package limiter

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCmdable is the subset of *redis.Client used by Redis.
type RedisCmdable interface {
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis keeps failure counters and blocks as expiring keys, so every server
// instance sharing the Redis sees the same lockouts.
type Redis struct {
	rdb      RedisCmdable
	prefix   string
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb RedisCmdable, window time.Duration, maxFails int, blockFor time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: "portal:login:", window: window, maxFails: maxFails, blockFor: blockFor}
}

func (l *Redis) keys(email string, ipHash []byte) (fails, block string) {
	id := email + ":" + hex.EncodeToString(ipHash)
	return l.prefix + "fails:" + id, l.prefix + "block:" + id
}

// Allow reports whether a block key is live.
func (l *Redis) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	_, block := l.keys(email, ipHash)
	ttl, err := l.rdb.PTTL(ctx, block).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

// Success drops both keys.
func (l *Redis) Success(ctx context.Context, email string, ipHash []byte) error {
	fails, block := l.keys(email, ipHash)
	return l.rdb.Del(ctx, fails, block).Err()
}

// Failure bumps the counter; the first failure starts the window.
func (l *Redis) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	fails, block := l.keys(email, ipHash)
	n, err := l.rdb.Incr(ctx, fails).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, fails, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n < int64(l.maxFails) {
		return false, 0, nil
	}
	if err := l.rdb.Set(ctx, block, "1", l.blockFor).Err(); err != nil {
		return false, 0, err
	}
	_ = l.rdb.Del(ctx, fails).Err()
	return true, l.blockFor, nil
}
