package services

import (
	"sync"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/pkg/cache"
)

// ThrottleService enforces the per-room minimum inter-frame interval. It
// is the only thing that rejects frames for protocol reasons; rejection is
// silent (no queue, no reordering, no retry).
//
// The accept/record step needs an atomic read-modify-write per room entry,
// so the timestamp map is guarded by its own mutex rather than going
// through pkg/cache's Get/Set pair, which would race between the two calls.
// pkg/cache is still put to use: it tracks room idleness so a background
// reaper can drop throttle state for rooms nobody has sent a frame to in a
// while, the same dataset that would otherwise grow unbounded for the
// lifetime of the process.
type ThrottleService struct {
	mu           sync.Mutex
	lastAccepted map[domain.RoomID]time.Time
	minInterval  time.Duration

	idle *cache.Cache
}

// NewThrottleService creates a throttle with the given minimum inter-frame
// interval (100ms in the default configuration).
func NewThrottleService(minInterval time.Duration) *ThrottleService {
	return &ThrottleService{
		lastAccepted: make(map[domain.RoomID]time.Time),
		minInterval:  minInterval,
		idle:         cache.NewCache(10 * time.Minute),
	}
}

// Accept reports whether a frame arriving at "now" for room may proceed. On
// acceptance it records now as the room's last-accepted ingress timestamp,
// whether or not downstream processing later fails. Throttle state is not
// rewound; the failed frame still counts as an accepted slot.
func (t *ThrottleService) Accept(room domain.RoomID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.idle.Set(string(room), struct{}{})

	last, ok := t.lastAccepted[room]
	if ok && now.Sub(last) < t.minInterval {
		return false
	}
	t.lastAccepted[room] = now
	return true
}

// Forget drops throttle state for a room, called when its last peer leaves.
func (t *ThrottleService) Forget(room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastAccepted, room)
	t.idle.Delete(string(room))
}

// Reap removes throttle entries for rooms the idle cache no longer
// remembers seeing traffic from, bounding the map to active rooms.
func (t *ThrottleService) Reap() {
	t.idle.Invalidate("")

	t.mu.Lock()
	defer t.mu.Unlock()
	for room := range t.lastAccepted {
		if _, alive := t.idle.Get(string(room)); !alive {
			delete(t.lastAccepted, room)
		}
	}
}

// Stop releases the background idle-tracking cache's cleanup goroutine.
func (t *ThrottleService) Stop() {
	t.idle.Stop()
}
