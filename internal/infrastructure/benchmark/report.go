package benchmark

import "time"

// LatencyStats summarizes one latency dimension over a whole run.
type LatencyStats struct {
	MedianMs  float64 `json:"median_ms"`
	P95Ms     float64 `json:"p95_ms"`
	AverageMs float64 `json:"average_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
}

// RunInfo identifies the run and its headline counts.
type RunInfo struct {
	Timestamp            time.Time `json:"timestamp"`
	Mode                 string    `json:"mode"`
	DurationSeconds      float64   `json:"duration_seconds"`
	TotalFrames          int       `json:"total_frames"`
	FramesWithDetections int       `json:"frames_with_detections"`
	DetectionRatePercent float64   `json:"detection_rate_percent"`
}

// Performance carries throughput and the three latency dimensions.
type Performance struct {
	ProcessedFPS   float64      `json:"processed_fps"`
	E2ELatency     LatencyStats `json:"e2e_latency"`
	ServerLatency  LatencyStats `json:"server_latency"`
	NetworkLatency LatencyStats `json:"network_latency"`
}

// Bandwidth carries transfer aggregates for the run.
type Bandwidth struct {
	UplinkKbps         float64 `json:"uplink_kbps"`
	DownlinkKbps       float64 `json:"downlink_kbps"`
	TotalBytesSent     uint64  `json:"total_bytes_sent"`
	TotalBytesReceived uint64  `json:"total_bytes_received"`
}

// Report is the persisted benchmark document.
type Report struct {
	Benchmark   RunInfo     `json:"benchmark"`
	Performance Performance `json:"performance"`
	Bandwidth   Bandwidth   `json:"bandwidth"`
}
