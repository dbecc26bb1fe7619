package viewer

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/inference"
)

// offloadJPEGQuality is the moderate-quality re-encode applied before a
// frame leaves the viewer for the Inference Engine. The detector input is
// 640x640; anything sharper than this is wasted uplink.
const offloadJPEGQuality = 60

// dispatchOutcome is what a finished dispatch posts back into the
// orchestrator's event loop.
type dispatchOutcome struct {
	result domain.DetectionResult
	err    error
}

// runLocal performs local-mode dispatch off the event loop: decode,
// resize to the detector input, infer in-process, postprocess. The engine
// timestamps are set to the local wall clock.
func runLocal(ctx context.Context, req domain.FrameRequest, detector ports.Detector, post *services.InferenceService, inputSize int, done chan<- dispatchOutcome) {
	recvTS := time.Now().UnixMilli()

	result := domain.DetectionResult{
		FrameID:    req.FrameID,
		CaptureTS:  req.CaptureTS,
		RecvTS:     recvTS,
		Detections: []domain.Detection{},
	}

	img, err := inference.DecodeImageData(req.ImageData)
	if err != nil {
		done <- dispatchOutcome{result: result, err: err}
		return
	}

	resized, err := inference.ResizeToSquare(img, inputSize)
	if err != nil {
		done <- dispatchOutcome{result: result, err: err}
		return
	}

	tensor := inference.ToTensor(resized, inputSize)
	candidates, err := detector.Infer(ctx, tensor)
	inference.ReleaseTensor(tensor)
	if err != nil {
		done <- dispatchOutcome{result: result, err: err}
		return
	}

	result.InferenceTS = time.Now().UnixMilli()
	result.Detections = post.Postprocess(candidates)
	done <- dispatchOutcome{result: result}
}

// encodedFrame is an offload-ready frame: resized, re-encoded, and wrapped
// back into a Frame Request whose imageData carries the smaller payload.
type encodedFrame struct {
	req domain.FrameRequest
	err error
}

// encodeForOffload prepares a frame for the engine off the event loop:
// decode, resize to the detector input, re-encode as moderate-quality JPEG,
// base64 under a data-URI prefix the engine knows to strip.
func encodeForOffload(req domain.FrameRequest, inputSize int, out chan<- encodedFrame) {
	img, err := inference.DecodeImageData(req.ImageData)
	if err != nil {
		out <- encodedFrame{req: req, err: err}
		return
	}

	resized, err := inference.ResizeToSquare(img, inputSize)
	if err != nil {
		out <- encodedFrame{req: req, err: err}
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: offloadJPEGQuality}); err != nil {
		out <- encodedFrame{req: req, err: err}
		return
	}

	sent := req
	sent.Width = inputSize
	sent.Height = inputSize
	sent.ImageData = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	out <- encodedFrame{req: sent}
}

// emptyResult synthesizes the offload-timeout fallback: same identity as the
// request, no detections, engine timestamps set to the capture timestamp so
// downstream latency math attributes zero server/network time.
func emptyResult(req domain.FrameRequest) domain.DetectionResult {
	return domain.DetectionResult{
		FrameID:     req.FrameID,
		CaptureTS:   req.CaptureTS,
		RecvTS:      req.CaptureTS,
		InferenceTS: req.CaptureTS,
		Detections:  []domain.Detection{},
	}
}
