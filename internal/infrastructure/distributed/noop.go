package distributed

import (
	"context"

	"detectmesh/internal/core/domain"
)

// NoopEventPublisher implements ports.EventPublisher for single-instance
// deployments, where there is no second broker instance to propagate room
// membership events to over Redis pub/sub.
type NoopEventPublisher struct{}

func NewNoopEventPublisher() *NoopEventPublisher { return &NoopEventPublisher{} }

func (NoopEventPublisher) PublishPeerJoined(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error {
	return nil
}

func (NoopEventPublisher) PublishPeerLeft(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error {
	return nil
}
