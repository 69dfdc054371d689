package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another importer holds the base.
var ErrLocked = errors.New("base is locked by another import")

// Locker serializes work on one base identifier.
type Locker interface {
	Lock(ctx context.Context, base string) (unlock func(context.Context) error, err error)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

const lockKeyPrefix = "assign:lock:"

// RedisLocker holds a short-lived Redis lock per base while a group is
// assigned and committed.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a Locker on top of a Redis client. Lock attempts
// retry for up to wait before giving up.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Lock obtains the lock for base.
func (l *RedisLocker) Lock(ctx context.Context, base string) (func(context.Context) error, error) {
	opts := &redislock.Options{}
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
		opts.RetryStrategy = redislock.LinearBackoff(100 * time.Millisecond)
	}

	lock, err := l.client.Obtain(ctx, lockKeyPrefix+base, l.ttl, opts)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to obtain lock: %w", err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}
