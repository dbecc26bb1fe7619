package monitoring

import (
	"context"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck registers a ping probe against the distributed room
// registry's backing store. Only wired when Redis mode is enabled.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", timeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// AddDetectorCheck registers a probe that the shared detector is loaded.
func (h *HealthChecker) AddDetectorCheck(detector ports.Detector, timeout time.Duration) {
	h.AddCheck("detector", timeout, func(ctx context.Context) error {
		if !detector.Loaded() {
			return domain.ErrDetectorNotLoaded
		}
		return nil
	})
}
