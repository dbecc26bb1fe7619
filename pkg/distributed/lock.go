package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Unlock when the lock expired or was taken over
// by another holder before the release.
var ErrNotHeld = errors.New("lock not held by this instance")

// releaseScript deletes the key only when it still carries our token, so a
// holder whose lock expired cannot release a successor's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// renewScript extends the TTL only while the key still carries our token.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`

// DistributedLock is a single-key Redis lock with a random holder token and
// background TTL renewal while held.
type DistributedLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	stopRenew chan struct{}
}

// NewDistributedLock builds a lock over key. Nothing is acquired until Lock
// or TryLock succeeds.
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	b := make([]byte, 16)
	rand.Read(b)

	return &DistributedLock{
		client:    client,
		key:       key,
		token:     hex.EncodeToString(b),
		ttl:       ttl,
		stopRenew: make(chan struct{}),
	}
}

// TryLock attempts a single non-blocking acquisition.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if acquired {
		go l.renew()
	}
	return acquired, nil
}

// Lock blocks until the lock is acquired, the timeout elapses, or ctx is
// cancelled. A zero timeout means 30 seconds.
func (l *DistributedLock) Lock(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire lock %s: timed out after %s", l.key, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Unlock releases the lock and stops renewal. Returns ErrNotHeld when the
// key no longer carries this holder's token.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	close(l.stopRenew)

	deleted, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n, ok := deleted.(int64); ok && n == 0 {
		return ErrNotHeld
	}
	return nil
}

// renew extends the TTL at half-life intervals until released or lost.
func (l *DistributedLock) renew() {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			extended, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
			cancel()
			if err != nil {
				return
			}
			if n, ok := extended.(int64); ok && n == 0 {
				// Expired or taken over; renewing further would stomp
				// the new holder.
				return
			}
		case <-l.stopRenew:
			return
		}
	}
}
