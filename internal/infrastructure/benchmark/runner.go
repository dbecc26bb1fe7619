package benchmark

import (
	"context"
	"encoding/json"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/inference"
	"detectmesh/internal/infrastructure/viewer"

	"go.uber.org/zap"
)

// LocalRunner drives synthetic frames through the in-process inference path
// at the engine's frame interval, mirroring what a viewer in local mode
// does per frame.
type LocalRunner struct {
	Detector  ports.DetectorLoader
	Post      *services.InferenceService
	InputSize int
	Interval  time.Duration
	Logger    *zap.SugaredLogger
}

// Run processes frames until the duration elapses or ctx is cancelled.
// Cancellation is not an error: the caller inspects the collector to decide
// whether the samples gathered so far are worth keeping.
func (r *LocalRunner) Run(ctx context.Context, duration time.Duration, source *FrameSource, collector *Collector) error {
	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}

		req := source.Next()
		result, err := r.processFrame(ctx, req)
		if err != nil {
			r.Logger.Warnw("benchmark frame failed", "frame_id", req.FrameID, "error", err)
			continue
		}
		collector.RecordResult(services.Latency(result, time.Now()), len(result.Detections))
	}
}

func (r *LocalRunner) processFrame(ctx context.Context, req domain.FrameRequest) (domain.DetectionResult, error) {
	recvTS := time.Now().UnixMilli()

	result := domain.DetectionResult{
		FrameID:    req.FrameID,
		CaptureTS:  req.CaptureTS,
		RecvTS:     recvTS,
		Detections: []domain.Detection{},
	}

	img, err := inference.DecodeImageData(req.ImageData)
	if err != nil {
		return result, err
	}
	resized, err := inference.ResizeToSquare(img, r.InputSize)
	if err != nil {
		return result, err
	}
	tensor := inference.ToTensor(resized, r.InputSize)
	candidates, err := r.Detector.Infer(ctx, tensor)
	inference.ReleaseTensor(tensor)
	if err != nil {
		return result, err
	}

	result.InferenceTS = time.Now().UnixMilli()
	result.Detections = r.Post.Postprocess(candidates)
	return result, nil
}

// OffloadRunner drives synthetic frames through a live broker over the
// signaling connection, the same wire path a viewer in offload mode uses.
// Each frame is awaited up to Timeout; a frame whose reply never arrives
// contributes nothing to the sample set.
type OffloadRunner struct {
	Signal   *viewer.SignalClient
	Room     domain.RoomID
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.SugaredLogger
}

func (r *OffloadRunner) Run(ctx context.Context, duration time.Duration, source *FrameSource, collector *Collector) error {
	if err := r.Signal.Send("join-room", map[string]interface{}{
		"room": r.Room,
		"type": domain.WireTypeViewer,
	}); err != nil {
		return err
	}

	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}

		req := source.Next()
		if err := r.Signal.Send("process-frame", req); err != nil {
			return err
		}
		collector.RecordTransfer(uint64(source.PayloadBytes()), 0)

		result, size, ok := r.awaitResult(ctx, req.FrameID)
		if !ok {
			continue
		}
		collector.RecordTransfer(0, size)
		collector.RecordResult(services.Latency(result, time.Now()), len(result.Detections))
	}
}

// awaitResult reads the signaling inbox until the matching detection-result
// arrives or the timeout fires. Unrelated envelopes (peer events, ICE) and
// detection-results for other frame_ids are skipped; a processing-error
// abandons the frame.
func (r *OffloadRunner) awaitResult(ctx context.Context, frameID string) (domain.DetectionResult, uint64, bool) {
	timeout := time.NewTimer(r.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.DetectionResult{}, 0, false
		case <-timeout.C:
			r.Logger.Warnw("benchmark frame timed out", "frame_id", frameID)
			return domain.DetectionResult{}, 0, false
		case env, open := <-r.Signal.Inbox():
			if !open {
				return domain.DetectionResult{}, 0, false
			}
			switch env.Event {
			case "detection-result":
				var result domain.DetectionResult
				if err := json.Unmarshal(env.Data, &result); err != nil {
					r.Logger.Warnw("malformed detection-result", "error", err)
					continue
				}
				if result.FrameID != frameID {
					continue
				}
				return result, uint64(len(env.Data)), true
			case "processing-error":
				r.Logger.Warnw("engine reported processing error", "frame_id", frameID, "data", string(env.Data))
				return domain.DetectionResult{}, 0, false
			}
		}
	}
}
