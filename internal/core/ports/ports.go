package ports

import (
	"context"
	"time"

	"detectmesh/internal/core/domain"
)

// RoomRegistry is the single coordinator for room/slot mutation. All joins,
// leaves, and relay lookups observe a consistent snapshot through it. The
// registry is mutated only by the broker.
type RoomRegistry interface {
	// Join associates peerID with the role slot in room, evicting any
	// incumbent. It returns the evicted peer, if any, and the room's other
	// occupant (the peer that was already present before this join), if any.
	Join(ctx context.Context, room domain.RoomID, peerID domain.PeerID, role domain.Role) (evicted *domain.Peer, other *domain.Peer, err error)
	// Leave clears peerID's slot. If the room is left empty, it is freed.
	// It returns the room identifier and the remaining peer, if any.
	Leave(ctx context.Context, peerID domain.PeerID) (room domain.RoomID, remaining *domain.Peer, ok bool)
	// Get returns the current room state.
	Get(ctx context.Context, room domain.RoomID) (*domain.Room, bool)
	// PeerRoom returns the room a connection is currently registered in.
	PeerRoom(ctx context.Context, peerID domain.PeerID) (domain.RoomID, bool)
}

// Transport is the broker's abstraction over a single control connection,
// implemented by the gorilla/websocket adapter in production and by an
// in-memory fake in tests.
type Transport interface {
	Send(v interface{}) error
	Close() error
}

// EventPublisher propagates room membership changes to other broker
// instances when the registry is distributed.
// A no-op implementation is used for single-instance deployments.
type EventPublisher interface {
	PublishPeerJoined(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error
	PublishPeerLeft(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error
}

// Throttle enforces the per-room minimum inter-frame interval. Accept is
// the only mutating, precondition-checking entry point; it runs before
// enqueueing, not as a post-condition of dispatch.
type Throttle interface {
	// Accept reports whether a frame arriving "now" for room may proceed,
	// and if so records now as the room's last-accepted ingress timestamp.
	Accept(room domain.RoomID, now time.Time) bool
}

// Detector is the seam over the fixed-input object detector. The ONNX
// runtime itself is an external collaborator; production wiring loads a
// real model behind this interface.
type Detector interface {
	// Infer takes a [1,3,640,640] channel-first, 0..1-normalized RGB tensor
	// and returns raw candidate detections in the 0..640 input coordinate
	// frame, exactly as shaped by the model output.
	Infer(ctx context.Context, tensor []float32) ([]domain.Candidate, error)
	// Loaded reports whether the underlying model handle is ready.
	Loaded() bool
}

// DetectorLoader owns the detector's lazy/eager load lifecycle.
type DetectorLoader interface {
	Detector
	// Load is idempotent: a second call while already loaded returns
	// immediately with a zero duration and no error.
	Load(ctx context.Context) (time.Duration, error)
}

// FrameSink is where a completed (or synthesized) Detection Result is routed:
// the engine routes to the viewer registered for a room; the viewer routes
// to the capture peer over the reverse data channel.
type FrameSink interface {
	SendDetectionResult(ctx context.Context, room domain.RoomID, result domain.DetectionResult) error
	SendProcessingError(ctx context.Context, peerID domain.PeerID, message string) error
}

// DistributedLock coordinates single in-flight inference dispatch per room
// when the engine is horizontally scaled across processes.
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
