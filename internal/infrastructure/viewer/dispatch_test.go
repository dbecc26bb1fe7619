package viewer

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/inference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDetector struct {
	candidates []domain.Candidate
	err        error
}

func (d *fixedDetector) Loaded() bool { return true }

func (d *fixedDetector) Infer(ctx context.Context, tensor []float32) ([]domain.Candidate, error) {
	return d.candidates, d.err
}

func frameWithImage(t *testing.T) domain.FrameRequest {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24))))
	return domain.FrameRequest{
		Room:      "abc12",
		FrameID:   "frame_1",
		CaptureTS: time.Now().UnixMilli() - 40,
		Width:     32,
		Height:    24,
		ImageData: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
}

func TestRunLocal_ProducesDetections(t *testing.T) {
	det := &fixedDetector{candidates: []domain.Candidate{
		{X0: 64, Y0: 64, X1: 320, Y1: 320, Score: 0.9, ClassID: 0},
	}}
	done := make(chan dispatchOutcome, 1)
	req := frameWithImage(t)

	runLocal(context.Background(), req, det, services.NewInferenceService(0.45), 16, done)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, req.FrameID, out.result.FrameID)
	assert.Equal(t, req.CaptureTS, out.result.CaptureTS)
	assert.GreaterOrEqual(t, out.result.RecvTS, req.CaptureTS)
	assert.GreaterOrEqual(t, out.result.InferenceTS, out.result.RecvTS)
	require.Len(t, out.result.Detections, 1)
	assert.Equal(t, "person", out.result.Detections[0].Label)
}

func TestRunLocal_UndecodableFrameKeepsIdentity(t *testing.T) {
	done := make(chan dispatchOutcome, 1)
	req := frameWithImage(t)
	req.ImageData = "!!!garbage!!!"

	runLocal(context.Background(), req, &fixedDetector{}, services.NewInferenceService(0.45), 16, done)

	out := <-done
	require.Error(t, out.err)
	assert.Equal(t, req.FrameID, out.result.FrameID)
	assert.Empty(t, out.result.Detections)
}

func TestRunLocal_DetectorErrorSurfaces(t *testing.T) {
	done := make(chan dispatchOutcome, 1)
	det := &fixedDetector{err: domain.ErrInferenceFailed}

	runLocal(context.Background(), frameWithImage(t), det, services.NewInferenceService(0.45), 16, done)

	out := <-done
	assert.ErrorIs(t, out.err, domain.ErrInferenceFailed)
}

func TestEncodeForOffload_ReencodesToDataURI(t *testing.T) {
	out := make(chan encodedFrame, 1)
	req := frameWithImage(t)

	encodeForOffload(req, 16, out)

	enc := <-out
	require.NoError(t, enc.err)
	assert.Equal(t, req.FrameID, enc.req.FrameID)
	assert.Equal(t, 16, enc.req.Width)
	assert.Equal(t, 16, enc.req.Height)
	require.True(t, strings.HasPrefix(enc.req.ImageData, "data:image/jpeg;base64,"))

	img, err := inference.DecodeImageData(enc.req.ImageData)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestEncodeForOffload_UndecodableFrame(t *testing.T) {
	out := make(chan encodedFrame, 1)
	req := frameWithImage(t)
	req.ImageData = "!!!garbage!!!"

	encodeForOffload(req, 16, out)

	enc := <-out
	assert.ErrorIs(t, enc.err, domain.ErrFrameDecodeFailed)
}

func TestEmptyResult_ZeroesEngineTime(t *testing.T) {
	req := frameWithImage(t)

	result := emptyResult(req)
	assert.Equal(t, req.FrameID, result.FrameID)
	assert.Equal(t, req.CaptureTS, result.CaptureTS)
	assert.Equal(t, req.CaptureTS, result.RecvTS)
	assert.Equal(t, req.CaptureTS, result.InferenceTS)
	assert.NotNil(t, result.Detections)
	assert.Empty(t, result.Detections)
}
