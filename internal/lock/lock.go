// Package lock provides local and distributed mutual exclusion for
// background jobs. Single-node deployments use MemoryLocker; multi-instance
// deployments share a RedisLocker.
package lock

import (
	"context"
	"time"
)

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	// Acquire takes the lock if it is free or expired. It returns false
	// without error when another owner holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a lock held by this locker. Releasing a lock that has
	// expired or was taken over is a no-op.
	Release(ctx context.Context, key string) error
}

// CleanupKey guards the object-store cleanup worker.
const CleanupKey = "lock:cleanup:objects"

// WithLock runs fn only if key can be acquired, releasing it afterwards.
// It reports whether fn ran.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		// Release with a fresh context so cancellation of ctx does not strand the lock.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(rctx, key)
	}()
	return true, fn(ctx)
}
