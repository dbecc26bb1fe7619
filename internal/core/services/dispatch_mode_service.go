package services

import (
	"sync"
	"time"

	"detectmesh/internal/core/domain"
)

// DispatchModeService decides, for viewers configured in "auto" mode,
// whether a frame should be processed locally or offloaded, based on the
// recent telemetry trend. It is adapted from the mesh-streaming domain's
// adaptive bitrate hysteresis algorithm: switching is conservative in both
// directions so a noisy sample can't flap the mode frame-to-frame.
//
// Explicit "local" and "offload" viewer configurations bypass this service
// entirely; it only applies when the viewer opts into automatic selection.
type DispatchModeService struct {
	mu sync.Mutex

	current        domain.DispatchMode
	lastSwitch     time.Time
	minTimeBetween time.Duration
	hysteresis     float64

	// offloadOKLatencyMs is the end-to-end latency below which offload is
	// considered viable; above it (inflated by hysteresis) the service
	// falls back to local inference.
	offloadOKLatencyMs float64
}

// NewDispatchModeService builds the advisor starting in local mode.
func NewDispatchModeService() *DispatchModeService {
	return &DispatchModeService{
		current:            domain.DispatchLocal,
		minTimeBetween:     10 * time.Second,
		hysteresis:         0.15,
		offloadOKLatencyMs: 150,
	}
}

// Current returns the presently advised mode.
func (d *DispatchModeService) Current() domain.DispatchMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Observe feeds a fresh end-to-end latency sample (ms) and the uplink
// bandwidth (kbps) from the telemetry window, returning the mode to use for
// the next frame.
func (d *DispatchModeService) Observe(medianE2ELatencyMs float64, uplinkKbps float64, now time.Time) domain.DispatchMode {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastSwitch) < d.minTimeBetween {
		return d.current
	}

	switch d.current {
	case domain.DispatchOffload:
		// Downgrade to local only once latency clearly exceeds budget.
		threshold := d.offloadOKLatencyMs * (1 + d.hysteresis)
		if medianE2ELatencyMs > threshold || uplinkKbps <= 0 {
			d.current = domain.DispatchLocal
			d.lastSwitch = now
		}
	case domain.DispatchLocal:
		// Upgrade to offload only once latency is comfortably under budget.
		threshold := d.offloadOKLatencyMs * (1 - d.hysteresis)
		if medianE2ELatencyMs > 0 && medianE2ELatencyMs < threshold && uplinkKbps > 0 {
			d.current = domain.DispatchOffload
			d.lastSwitch = now
		}
	}

	return d.current
}
