package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained reports that another holder owns the lock.
var ErrLockNotObtained = errors.New("lock held by another owner")

// Locker hands out namespaced distributed locks backed by redislock.
type Locker struct {
	client *redislock.Client
	keyFn  func(string) string
}

// NewLocker builds a Locker over any scripter. keyFn namespaces lock names;
// nil leaves them untouched.
func NewLocker(scripter redis.Scripter, keyFn func(string) string) (*Locker, error) {
	if scripter == nil {
		return nil, errors.New("redis scripter required for locker")
	}
	if keyFn == nil {
		keyFn = func(name string) string { return name }
	}
	return &Locker{client: redislock.New(scripter), keyFn: keyFn}, nil
}

// Locker returns a Locker sharing this client's connection and key namespace.
func (c *Client) Locker() (*Locker, error) {
	return NewLocker(c.Scripter(), c.LockKey)
}

// Obtain takes the named lock for ttl without retrying. The returned func
// releases it; releasing an expired lock is not an error.
func (l *Locker) Obtain(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	lock, err := l.client.Obtain(ctx, l.keyFn(name), ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockNotObtained
		}
		return nil, fmt.Errorf("obtain lock %s: %w", name, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}, nil
}
