package logger

import (
	"context"

	"go.uber.org/zap"
)

// Context keys are typed so callers outside this package cannot collide
// with them by accident.
type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyRoom
	ctxKeyPeer
	ctxKeyFrame
)

// WithRequestID tags ctx with an HTTP request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithRoom tags ctx with the room a message or frame belongs to.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, ctxKeyRoom, room)
}

// WithPeer tags ctx with the control-connection identifier.
func WithPeer(ctx context.Context, peerID string) context.Context {
	return context.WithValue(ctx, ctxKeyPeer, peerID)
}

// WithFrame tags ctx with the frame being processed.
func WithFrame(ctx context.Context, frameID string) context.Context {
	return context.WithValue(ctx, ctxKeyFrame, frameID)
}

// FromContext returns base enriched with whatever identity fields ctx
// carries. The zero case returns base unchanged.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	kv := make([]interface{}, 0, 8)
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok && id != "" {
		kv = append(kv, "request_id", id)
	}
	if room, ok := ctx.Value(ctxKeyRoom).(string); ok && room != "" {
		kv = append(kv, "room", room)
	}
	if peer, ok := ctx.Value(ctxKeyPeer).(string); ok && peer != "" {
		kv = append(kv, "peer_id", peer)
	}
	if frame, ok := ctx.Value(ctxKeyFrame).(string); ok && frame != "" {
		kv = append(kv, "frame_id", frame)
	}
	if len(kv) == 0 {
		return base
	}
	return base.With(kv...)
}
