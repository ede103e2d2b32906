package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TTLMonitorLock bounds how long a crashed holder can block other processes.
const TTLMonitorLock = 15 * time.Minute

// Locker hands out short-lived exclusive locks.
type Locker struct {
	cache *Cache
	ttl   time.Duration
}

// NewLocker creates a Locker whose locks expire after ttl.
func NewLocker(cache *Cache, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = TTLMonitorLock
	}
	return &Locker{cache: cache, ttl: ttl}
}

// TryLock acquires resource. ok is false when another holder has it.
// The returned release func only deletes the lock while this caller holds it.
func (l *Locker) TryLock(ctx context.Context, resource string) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	key := LockKey(resource)

	ok, err = l.cache.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", resource, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if _, err := l.cache.DeleteIfEqual(ctx, key, token); err != nil {
			return fmt.Errorf("release lock %s: %w", resource, err)
		}
		return nil
	}
	return release, true, nil
}
