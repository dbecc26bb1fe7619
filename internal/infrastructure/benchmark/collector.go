package benchmark

import (
	"sort"
	"sync"
	"time"

	"detectmesh/internal/core/domain"
)

// Collector accumulates per-frame samples for the duration of one run. A
// benchmark is bounded, so unlike the viewer's telemetry rings it keeps
// every sample; the report is computed once at the end.
type Collector struct {
	mu sync.Mutex

	mode    string
	started time.Time

	e2e     []float64
	server  []float64
	network []float64

	totalFrames          int
	framesWithDetections int

	bytesSent     uint64
	bytesReceived uint64
}

func NewCollector(mode string) *Collector {
	return &Collector{mode: mode, started: time.Now()}
}

// RecordResult folds one Detection Result's derived timings into the run.
func (c *Collector) RecordResult(breakdown domain.LatencyBreakdown, detectionCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.e2e = append(c.e2e, breakdown.EndToEndMs)
	c.server = append(c.server, breakdown.ServerMs)
	c.network = append(c.network, breakdown.NetworkMs)
	c.totalFrames++
	if detectionCount > 0 {
		c.framesWithDetections++
	}
}

// RecordTransfer adds to the run's byte totals.
func (c *Collector) RecordTransfer(sent, received uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesSent += sent
	c.bytesReceived += received
}

// SampleCount reports how many results have been recorded so far; the CLI
// uses it to decide whether an aborted run still deserves a partial file.
func (c *Collector) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalFrames
}

// Report freezes the run into the persisted document. elapsed is the actual
// wall time of the run, which on an aborted run is shorter than requested.
func (c *Collector) Report(elapsed time.Duration) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	seconds := elapsed.Seconds()

	report := &Report{
		Benchmark: RunInfo{
			Timestamp:            c.started,
			Mode:                 c.mode,
			DurationSeconds:      seconds,
			TotalFrames:          c.totalFrames,
			FramesWithDetections: c.framesWithDetections,
		},
		Performance: Performance{
			E2ELatency:     summarize(c.e2e),
			ServerLatency:  summarize(c.server),
			NetworkLatency: summarize(c.network),
		},
		Bandwidth: Bandwidth{
			TotalBytesSent:     c.bytesSent,
			TotalBytesReceived: c.bytesReceived,
		},
	}

	if c.totalFrames > 0 {
		report.Benchmark.DetectionRatePercent = 100 * float64(c.framesWithDetections) / float64(c.totalFrames)
	}
	if seconds > 0 {
		report.Performance.ProcessedFPS = float64(c.totalFrames) / seconds
		report.Bandwidth.UplinkKbps = float64(c.bytesSent) * 8 / 1000 / seconds
		report.Bandwidth.DownlinkKbps = float64(c.bytesReceived) * 8 / 1000 / seconds
	}

	return report
}

// summarize computes the run-level stats for one latency dimension. P95 uses
// index ⌊0.95·n⌋ into the sorted samples, matching the viewer's window math.
func summarize(samples []float64) LatencyStats {
	n := len(samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	median := sorted[n/2]
	if n%2 == 0 && n >= 2 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	idx := int(0.95 * float64(n))
	if idx >= n {
		idx = n - 1
	}

	return LatencyStats{
		MedianMs:  median,
		P95Ms:     sorted[idx],
		AverageMs: sum / float64(n),
		MinMs:     sorted[0],
		MaxMs:     sorted[n-1],
	}
}
