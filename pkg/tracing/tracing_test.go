package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInit_DisabledProviderIsInert(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpan_NoopWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "frame.received")
	require.NotNil(t, span)
	assert.False(t, span.IsRecording())

	// Helpers must tolerate the no-op span.
	AddSpanAttributes(ctx, attribute.String("room.id", "abc12"))
	RecordError(ctx, errors.New("detector not loaded"))
	span.End()
}

func TestTraceHelpers_ReturnSpans(t *testing.T) {
	_, httpSpan := TraceHTTPRequest(context.Background(), "GET", "/model-status")
	require.NotNil(t, httpSpan)
	httpSpan.End()

	_, rtcSpan := TraceWebRTC(context.Background(), "join-room", "peer_1", "abc12")
	require.NotNil(t, rtcSpan)
	rtcSpan.End()

	_, frameSpan := TraceFrameProcessing(context.Background(), "inference", "abc12", "frame_1")
	require.NotNil(t, frameSpan)
	frameSpan.End()
}
