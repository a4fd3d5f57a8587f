package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with process-local state. Locks are not
// shared across instances or restarts.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> expiry
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, held := m.locks[key]; held && now.Before(expiry) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryLocker) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
