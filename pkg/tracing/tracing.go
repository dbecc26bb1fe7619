package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Config carries the Jaeger exporter settings from the tracing section of
// the YAML config.
type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	SampleRate  float64
}

// TracerProvider owns the OTel SDK provider so callers can flush spans on
// shutdown without importing the SDK themselves.
type TracerProvider struct {
	tp *tracesdk.TracerProvider
}

// Init wires the global tracer. With tracing disabled it returns an inert
// provider: StartSpan then yields no-op spans and every helper below is
// safe to call unconditionally.
func Init(cfg Config) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes buffered spans. A provider from a disabled Init is a
// no-op.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp == nil {
		return nil
	}
	return tp.tp.Shutdown(ctx)
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer("detectmesh").Start(ctx, name, opts...)
}

// RecordError marks the current span failed with err.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddSpanAttributes attaches attrs to the current span, if any.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

var (
	RoomIDKey  = attribute.Key("room.id")
	PeerIDKey  = attribute.Key("peer.id")
	FrameIDKey = attribute.Key("frame.id")
)

// TraceHTTPRequest opens a span for one HTTP request on the broker's side
// channel.
func TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, "http."+method,
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(path),
		),
	)
}

// TraceWebRTC opens a span for a signaling exchange step (join, offer,
// answer, ICE relay) keyed by peer and room.
func TraceWebRTC(ctx context.Context, operation string, peerID, roomID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "webrtc."+operation,
		trace.WithAttributes(
			attribute.String("webrtc.operation", operation),
			PeerIDKey.String(peerID),
			RoomIDKey.String(roomID),
		),
	)
}

// TraceFrameProcessing opens a span for one frame's stage in the inference
// path, keyed by room and frame id.
func TraceFrameProcessing(ctx context.Context, stage string, roomID, frameID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "frame."+stage,
		trace.WithAttributes(
			attribute.String("frame.stage", stage),
			RoomIDKey.String(roomID),
			FrameIDKey.String(frameID),
		),
	)
}
