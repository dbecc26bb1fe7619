package distributed

import (
	"context"
	"sync"
	"time"

	"detectmesh/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

// LockAdapter implements ports.DistributedLock over pkg/distributed's
// per-key Redis lock, keyed by the caller-supplied string (a room ID in
// practice: one dispatcher, one lock, per room).
type LockAdapter struct {
	client *redis.Client

	mu    sync.Mutex
	locks map[string]*distributed.DistributedLock
}

func NewLockAdapter(client *redis.Client) *LockAdapter {
	return &LockAdapter{
		client: client,
		locks:  make(map[string]*distributed.DistributedLock),
	}
}

func (a *LockAdapter) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lock := distributed.NewDistributedLock(a.client, "detectmesh:lock:"+key, ttl)

	acquired, err := lock.TryLock(ctx)
	if err != nil || !acquired {
		return false, err
	}

	a.mu.Lock()
	a.locks[key] = lock
	a.mu.Unlock()

	return true, nil
}

func (a *LockAdapter) Unlock(ctx context.Context, key string) error {
	a.mu.Lock()
	lock, ok := a.locks[key]
	if ok {
		delete(a.locks, key)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}
	return lock.Unlock(ctx)
}
