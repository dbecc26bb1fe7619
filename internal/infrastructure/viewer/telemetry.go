package viewer

import (
	"context"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/pkg/batch"
)

// TelemetrySnapshot is the derived view the orchestrator emits to the UI
// collaborator after each Detection Result. The UI
// itself (dashboards, overlays) is outside this core; only this shape is.
type TelemetrySnapshot struct {
	Room domain.RoomID `json:"room"`
	Mode string        `json:"mode"`

	EndToEndMs float64 `json:"e2e_ms"`
	ServerMs   float64 `json:"server_ms"`
	NetworkMs  float64 `json:"network_ms"`

	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`

	UplinkKbps   float64 `json:"uplink_kbps"`
	DownlinkKbps float64 `json:"downlink_kbps"`

	ProcessedFrames      uint64 `json:"processed_frames"`
	FramesWithDetections uint64 `json:"frames_with_detections"`
	DetectionCount       int    `json:"detection_count"`

	At time.Time `json:"at"`
}

// TelemetryEmitter receives snapshots on behalf of the UI collaborator.
type TelemetryEmitter interface {
	Emit(ctx context.Context, snap TelemetrySnapshot) error
}

// EmitterFunc adapts a plain function to TelemetryEmitter.
type EmitterFunc func(ctx context.Context, snap TelemetrySnapshot) error

func (f EmitterFunc) Emit(ctx context.Context, snap TelemetrySnapshot) error {
	return f(ctx, snap)
}

type snapshotOp struct {
	emitter TelemetryEmitter
	snap    TelemetrySnapshot
}

func (op snapshotOp) Execute(ctx context.Context) error {
	return op.emitter.Emit(ctx, op.snap)
}

// BatchedEmitter coalesces per-frame snapshots through pkg/batch so a fast
// detection loop does not push one UI update per frame. Snapshots flush on
// size or interval, whichever comes first.
type BatchedEmitter struct {
	inner   TelemetryEmitter
	batcher *batch.Batcher
}

func NewBatchedEmitter(inner TelemetryEmitter, size int, interval time.Duration) *BatchedEmitter {
	e := &BatchedEmitter{inner: inner}
	e.batcher = batch.NewBatcher(size, interval, e)
	return e
}

func (e *BatchedEmitter) Emit(ctx context.Context, snap TelemetrySnapshot) error {
	return e.batcher.Add(snapshotOp{emitter: e.inner, snap: snap})
}

// ProcessBatch delivers only the newest snapshot of each flushed batch: the
// UI wants the current picture, not a replay of intermediate ones.
func (e *BatchedEmitter) ProcessBatch(ctx context.Context, ops []batch.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	return ops[len(ops)-1].Execute(ctx)
}

func (e *BatchedEmitter) Stop() {
	e.batcher.Stop()
}
