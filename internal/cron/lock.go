package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/marketledger-backend/pkg/redis"
)

const defaultLockTTL = 55 * time.Minute

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// locker is satisfied by *redis.Locker.
type locker interface {
	Obtain(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// RedisLock implements Lock on top of a redislock-backed locker.
type RedisLock struct {
	locker  locker
	name    string
	ttl     time.Duration
	mu      sync.Mutex
	release func(context.Context) error
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(l locker, name string, ttl time.Duration) (*RedisLock, error) {
	if l == nil {
		return nil, errors.New("redis locker required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{locker: l, name: name, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release != nil {
		return false, nil
	}
	release, err := l.locker.Obtain(ctx, l.name, l.ttl)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotObtained) {
			return false, nil
		}
		return false, fmt.Errorf("obtain: %w", err)
	}
	l.release = release
	return true, nil
}

// Release frees the lock if this instance holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release(ctx)
}
