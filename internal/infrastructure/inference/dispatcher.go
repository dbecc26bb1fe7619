package inference

import (
	"context"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/pkg/tracing"

	"go.uber.org/zap"
)

// job is one accepted Frame Request queued for inference.
type job struct {
	room     domain.RoomID
	originID domain.PeerID
	req      domain.FrameRequest
}

// Dispatcher is the single goroutine that owns the detector handle and
// serializes every inference invocation through it. Per-room throttling
// happens before a job is ever enqueued here; see Submit.
type Dispatcher struct {
	detector   ports.DetectorLoader
	throttle   ports.Throttle
	post       *services.InferenceService
	sink       ports.FrameSink
	logger     *zap.SugaredLogger
	inputSize  int
	queue      chan job
	done       chan struct{}
}

func NewDispatcher(
	detector ports.DetectorLoader,
	throttle ports.Throttle,
	post *services.InferenceService,
	sink ports.FrameSink,
	logger *zap.SugaredLogger,
	inputSize int,
	queueDepth int,
) *Dispatcher {
	d := &Dispatcher{
		detector:  detector,
		throttle:  throttle,
		post:      post,
		sink:      sink,
		logger:    logger,
		inputSize: inputSize,
		queue:     make(chan job, queueDepth),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit applies the per-room throttle precondition before enqueueing
// (never as a post-condition of dispatch) and, if accepted, enqueues the
// job for the dispatcher
// goroutine. It never blocks the transport handler on inference.
func (d *Dispatcher) Submit(room domain.RoomID, originID domain.PeerID, req domain.FrameRequest) bool {
	if !d.throttle.Accept(room, time.Now()) {
		return false
	}

	select {
	case d.queue <- job{room: room, originID: originID, req: req}:
		return true
	default:
		// Queue saturated under the shared detector; drop rather than
		// block, extending the throttle's no-queue, no-reordering rule
		// to the rare overflow case.
		d.logger.Warnw("dispatcher queue saturated, dropping frame", "room", room, "frame_id", req.FrameID)
		return false
	}
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case j := <-d.queue:
			d.process(j)
		}
	}
}

func (d *Dispatcher) process(j job) {
	ctx, span := tracing.TraceFrameProcessing(context.Background(), "process", string(j.room), j.req.FrameID)
	defer span.End()
	recvTS := time.Now().UnixMilli()

	img, err := DecodeImageData(j.req.ImageData)
	if err != nil {
		d.fail(ctx, j, err)
		return
	}

	resized, err := ResizeToSquare(img, d.inputSize)
	if err != nil {
		d.fail(ctx, j, err)
		return
	}

	tensor := ToTensor(resized, d.inputSize)

	candidates, err := d.detector.Infer(ctx, tensor)
	ReleaseTensor(tensor)
	if err != nil {
		d.fail(ctx, j, err)
		return
	}

	inferenceTS := time.Now().UnixMilli()
	detections := d.post.Postprocess(candidates)

	result := domain.DetectionResult{
		FrameID:     j.req.FrameID,
		CaptureTS:   j.req.CaptureTS,
		RecvTS:      recvTS,
		InferenceTS: inferenceTS,
		Detections:  detections,
	}

	if err := d.sink.SendDetectionResult(ctx, j.room, result); err != nil {
		d.logger.Warnw("failed to route detection result", "room", j.room, "error", err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, j job, err error) {
	tracing.RecordError(ctx, err)
	d.logger.Warnw("frame processing failed", "room", j.room, "frame_id", j.req.FrameID, "error", err)
	if sendErr := d.sink.SendProcessingError(ctx, j.originID, err.Error()); sendErr != nil {
		d.logger.Warnw("failed to deliver processing-error", "room", j.room, "error", sendErr)
	}
}

// Close stops the dispatcher goroutine. In-flight jobs are abandoned.
func (d *Dispatcher) Close() {
	close(d.done)
}
