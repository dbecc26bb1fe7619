package services

import (
	"testing"
	"time"

	"detectmesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestPercentiles_Empty(t *testing.T) {
	ts := NewTelemetryService()
	median, p95 := ts.Percentiles()
	assert.Equal(t, 0.0, median)
	assert.Equal(t, 0.0, p95)
}

func TestPercentiles_OddCount(t *testing.T) {
	ts := NewTelemetryService()
	for _, v := range []float64{30, 10, 20} {
		ts.RecordLatency(v)
	}

	median, p95 := ts.Percentiles()
	assert.Equal(t, 20.0, median)
	// idx = int(0.95*3) = 2
	assert.Equal(t, 30.0, p95)
}

func TestPercentiles_EvenCountAveragesMiddlePair(t *testing.T) {
	ts := NewTelemetryService()
	for _, v := range []float64{40, 10, 30, 20} {
		ts.RecordLatency(v)
	}

	median, _ := ts.Percentiles()
	assert.Equal(t, 25.0, median)
}

func TestPercentiles_FullWindowP95Index(t *testing.T) {
	ts := NewTelemetryService()
	for i := 1; i <= 100; i++ {
		ts.RecordLatency(float64(i))
	}

	median, p95 := ts.Percentiles()
	// sorted[50] with the even-count average of sorted[49] and sorted[50].
	assert.Equal(t, 50.5, median)
	// idx = int(0.95*100) = 95 -> value 96
	assert.Equal(t, 96.0, p95)
}

func TestRecordLatency_RingEvictsOldest(t *testing.T) {
	ts := NewTelemetryService()
	for i := 0; i < 100; i++ {
		ts.RecordLatency(1000)
	}
	for i := 0; i < 100; i++ {
		ts.RecordLatency(5)
	}

	median, p95 := ts.Percentiles()
	assert.Equal(t, 5.0, median)
	assert.Equal(t, 5.0, p95)
}

func TestBandwidthKbps_NeedsTwoSamples(t *testing.T) {
	ts := NewTelemetryService()
	up, down := ts.BandwidthKbps()
	assert.Equal(t, 0.0, up)
	assert.Equal(t, 0.0, down)

	ts.RecordBandwidthSample(domain.BandwidthSample{At: time.Now()})
	up, down = ts.BandwidthKbps()
	assert.Equal(t, 0.0, up)
	assert.Equal(t, 0.0, down)
}

func TestBandwidthKbps_DeltaOverElapsed(t *testing.T) {
	ts := NewTelemetryService()
	base := time.Now()

	ts.RecordBandwidthSample(domain.BandwidthSample{At: base, BytesSent: 0, BytesReceived: 0})
	ts.RecordBandwidthSample(domain.BandwidthSample{At: base.Add(2 * time.Second), BytesSent: 250_000, BytesReceived: 500_000})

	up, down := ts.BandwidthKbps()
	// 250 kB over 2s = 1000 kbps; 500 kB over 2s = 2000 kbps.
	assert.InDelta(t, 1000, up, 1e-9)
	assert.InDelta(t, 2000, down, 1e-9)
}

func TestBandwidthKbps_RingKeepsLastTen(t *testing.T) {
	ts := NewTelemetryService()
	base := time.Now()

	for i := 0; i < 15; i++ {
		ts.RecordBandwidthSample(domain.BandwidthSample{
			At:        base.Add(time.Duration(i) * time.Second),
			BytesSent: uint64(i) * 1000,
		})
	}

	up, _ := ts.BandwidthKbps()
	// Oldest surviving sample is i=5: delta 9000 bytes over 9s = 8 kbps.
	assert.InDelta(t, 8, up, 1e-9)
}

func TestLatency_Breakdown(t *testing.T) {
	now := time.Now()
	result := domain.DetectionResult{
		CaptureTS:   now.UnixMilli() - 120,
		RecvTS:      now.UnixMilli() - 80,
		InferenceTS: now.UnixMilli() - 30,
	}

	lb := Latency(result, now)
	assert.Equal(t, 120.0, lb.EndToEndMs)
	assert.Equal(t, 50.0, lb.ServerMs)
	assert.Equal(t, 40.0, lb.NetworkMs)
}

func TestLatency_SynthesizedResultHasZeroServerAndNetwork(t *testing.T) {
	now := time.Now()
	// Synthesized offload-timeout result: all engine timestamps equal the
	// capture timestamp, so server and network components are zero.
	capture := now.UnixMilli() - 200
	result := domain.DetectionResult{CaptureTS: capture, RecvTS: capture, InferenceTS: capture}

	lb := Latency(result, now)
	assert.Equal(t, 200.0, lb.EndToEndMs)
	assert.Equal(t, 0.0, lb.ServerMs)
	assert.Equal(t, 0.0, lb.NetworkMs)
}
