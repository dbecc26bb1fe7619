package services

import (
	"sort"
	"sync"
	"time"

	"detectmesh/internal/core/domain"
)

const (
	latencyWindowSize   = 100
	bandwidthWindowSize = 10
)

// TelemetryService maintains the per-session telemetry rings: at most
// 100 end-to-end latency samples and 10 bandwidth snapshots, per viewer
// session. One instance covers one viewer's one room.
type TelemetryService struct {
	mu sync.Mutex

	latencies []float64 // ring, oldest overwritten first
	next      int
	filled    int

	samples []domain.BandwidthSample
	bwNext  int
	bwCount int
}

func NewTelemetryService() *TelemetryService {
	return &TelemetryService{
		latencies: make([]float64, latencyWindowSize),
		samples:   make([]domain.BandwidthSample, bandwidthWindowSize),
	}
}

// RecordLatency appends an end-to-end latency sample (ms) to the ring.
func (t *TelemetryService) RecordLatency(ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.latencies[t.next] = ms
	t.next = (t.next + 1) % latencyWindowSize
	if t.filled < latencyWindowSize {
		t.filled++
	}
}

// Percentiles recomputes median and P95 from a sorted copy of the current
// ring contents. P95 uses index ⌊0.95·n⌋ into the sorted copy, n being the
// ring's current fill level.
func (t *TelemetryService) Percentiles() (median, p95 float64) {
	t.mu.Lock()
	n := t.filled
	sorted := make([]float64, n)
	copy(sorted, t.latencies[:n])
	t.mu.Unlock()

	if n == 0 {
		return 0, 0
	}

	sort.Float64s(sorted)

	median = sorted[n/2]
	if n%2 == 0 && n >= 2 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	idx := int(0.95 * float64(n))
	if idx >= n {
		idx = n - 1
	}
	p95 = sorted[idx]

	return median, p95
}

// RecordBandwidthSample appends a (timestamp, bytes-sent, bytes-received)
// snapshot to the 10-entry ring.
func (t *TelemetryService) RecordBandwidthSample(s domain.BandwidthSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.bwNext] = s
	t.bwNext = (t.bwNext + 1) % bandwidthWindowSize
	if t.bwCount < bandwidthWindowSize {
		t.bwCount++
	}
}

// BandwidthKbps derives uplink/downlink kbps from the oldest-to-newest
// deltas in the current ring over the elapsed wall time.
func (t *TelemetryService) BandwidthKbps() (uplinkKbps, downlinkKbps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bwCount < 2 {
		return 0, 0
	}

	oldestIdx := (t.bwNext - t.bwCount + bandwidthWindowSize) % bandwidthWindowSize
	newestIdx := (t.bwNext - 1 + bandwidthWindowSize) % bandwidthWindowSize

	oldest := t.samples[oldestIdx]
	newest := t.samples[newestIdx]

	elapsed := newest.At.Sub(oldest.At).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}

	sentDelta := float64(newest.BytesSent - oldest.BytesSent)
	recvDelta := float64(newest.BytesReceived - oldest.BytesReceived)

	uplinkKbps = (sentDelta * 8 / 1000) / elapsed
	downlinkKbps = (recvDelta * 8 / 1000) / elapsed
	return uplinkKbps, downlinkKbps
}

// Latency computes the derived timing triple for a single Detection
// Result relative to "now" at the viewer.
func Latency(result domain.DetectionResult, now time.Time) domain.LatencyBreakdown {
	e2e := float64(now.UnixMilli() - result.CaptureTS)
	server := float64(result.InferenceTS - result.RecvTS)
	network := float64(result.RecvTS - result.CaptureTS)

	if server < 0 {
		server = 0
	}
	if network < 0 {
		network = 0
	}

	return domain.LatencyBreakdown{
		EndToEndMs: e2e,
		ServerMs:   server,
		NetworkMs:  network,
	}
}
