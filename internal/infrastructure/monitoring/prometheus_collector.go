package monitoring

import (
	"time"

	"detectmesh/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes the detection pipeline's operational metrics.
// Dashboards live elsewhere; only the exposition endpoint is served here.
type PrometheusCollector struct {
	roomsActive       prometheus.Gauge
	peersConnected    prometheus.Gauge
	framesAccepted    prometheus.Counter
	framesThrottled   prometheus.Counter
	framesFailed      prometheus.Counter
	detectionsEmitted prometheus.Counter

	inferenceDuration  prometheus.Histogram
	e2eLatency         prometheus.Histogram
	detectionsPerFrame *prometheus.HistogramVec

	roomDetectionCount *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "detectmesh_rooms_active",
			Help: "Number of rooms with at least one peer present",
		}),

		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "detectmesh_peers_connected",
			Help: "Number of control connections currently joined to a room",
		}),

		framesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "detectmesh_frames_accepted_total",
			Help: "Frame requests accepted past the per-room throttle",
		}),

		framesThrottled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "detectmesh_frames_throttled_total",
			Help: "Frame requests dropped by the per-room throttle",
		}),

		framesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "detectmesh_frames_failed_total",
			Help: "Frame requests that produced a processing-error",
		}),

		detectionsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "detectmesh_detections_emitted_total",
			Help: "Total individual detections emitted across all Detection Results",
		}),

		inferenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "detectmesh_inference_duration_seconds",
			Help:    "Time spent inside the detector invocation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8},
		}),

		e2eLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "detectmesh_e2e_latency_seconds",
			Help:    "End-to-end latency from capture to viewer-side Detection Result",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2},
		}),

		detectionsPerFrame: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detectmesh_detections_per_frame",
			Help:    "Number of surviving detections per processed frame",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}, []string{"room"}),

		roomDetectionCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "detectmesh_room_detections_total",
			Help: "Detections emitted per room",
		}, []string{"room"}),
	}
}

func (p *PrometheusCollector) RecordPeerJoined() { p.peersConnected.Inc() }
func (p *PrometheusCollector) RecordPeerLeft()   { p.peersConnected.Dec() }

func (p *PrometheusCollector) RecordRoomCreated() { p.roomsActive.Inc() }
func (p *PrometheusCollector) RecordRoomFreed()   { p.roomsActive.Dec() }

func (p *PrometheusCollector) RecordFrameAccepted()  { p.framesAccepted.Inc() }
func (p *PrometheusCollector) RecordFrameThrottled() { p.framesThrottled.Inc() }
func (p *PrometheusCollector) RecordFrameFailed()    { p.framesFailed.Inc() }

func (p *PrometheusCollector) RecordInference(d time.Duration) {
	p.inferenceDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordE2ELatency(d time.Duration) {
	p.e2eLatency.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordDetectionResult(room domain.RoomID, result domain.DetectionResult) {
	n := len(result.Detections)
	p.detectionsEmitted.Add(float64(n))
	p.detectionsPerFrame.WithLabelValues(string(room)).Observe(float64(n))
	p.roomDetectionCount.WithLabelValues(string(room)).Add(float64(n))
}
