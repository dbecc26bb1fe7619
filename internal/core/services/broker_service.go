package services

import (
	"context"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"

	"go.uber.org/zap"
)

// BrokerService implements the room-membership half of signaling: joining,
// leaving, and finding the relay target for a sender. It never inspects or
// retains SDP/ICE payloads; that relay is pure forwarding handled by the
// transport layer once it has a target peer ID from OtherPeer.
type BrokerService struct {
	registry ports.RoomRegistry
	events   ports.EventPublisher
	logger   *zap.SugaredLogger
}

func NewBrokerService(registry ports.RoomRegistry, events ports.EventPublisher, logger *zap.SugaredLogger) *BrokerService {
	return &BrokerService{
		registry: registry,
		events:   events,
		logger:   logger,
	}
}

// JoinResult describes the membership change a join-room call produced, for
// the transport layer to turn into peer-joined/peer-left emissions.
type JoinResult struct {
	Evicted *domain.Peer // non-nil if a prior occupant of this role was displaced
	Other   *domain.Peer // the opposite-role occupant already present, if any
}

// Join registers peerID in room under role, evicting any prior occupant of
// that role. A second join evicts rather than rejects.
func (b *BrokerService) Join(ctx context.Context, room domain.RoomID, peerID domain.PeerID, role domain.Role) (JoinResult, error) {
	evicted, other, err := b.registry.Join(ctx, room, peerID, role)
	if err != nil {
		return JoinResult{}, err
	}

	if evicted != nil {
		b.logger.Infow("evicted incumbent peer on re-join", "room", room, "role", role, "evicted_peer", evicted.ID, "peer", peerID)
		if perr := b.events.PublishPeerLeft(ctx, room, role, evicted.ID); perr != nil {
			b.logger.Warnw("failed to publish peer-left for evicted peer", "error", perr)
		}
	}

	if err := b.events.PublishPeerJoined(ctx, room, role, peerID); err != nil {
		b.logger.Warnw("failed to publish peer-joined", "error", err)
	}

	return JoinResult{Evicted: evicted, Other: other}, nil
}

// LeaveResult carries what the transport layer needs to notify the
// remaining peer, if any.
type LeaveResult struct {
	Room      domain.RoomID
	Remaining *domain.Peer
	Left      bool
}

// Leave clears peerID's slot and frees the room if both slots are now empty.
func (b *BrokerService) Leave(ctx context.Context, peerID domain.PeerID, role domain.Role) LeaveResult {
	room, remaining, ok := b.registry.Leave(ctx, peerID)
	if !ok {
		return LeaveResult{}
	}

	if err := b.events.PublishPeerLeft(ctx, room, role, peerID); err != nil {
		b.logger.Warnw("failed to publish peer-left", "error", err)
	}

	return LeaveResult{Room: room, Remaining: remaining, Left: true}
}

// OtherPeer finds the relay target for a message sent by "from" in room:
// the occupant of the opposite role. It returns ok=false if that slot is
// empty, in which case the caller drops the message silently; messages
// arriving for an empty opposite slot are dropped.
func (b *BrokerService) OtherPeer(ctx context.Context, room domain.RoomID, from domain.PeerID, fromRole domain.Role) (*domain.Peer, bool) {
	r, ok := b.registry.Get(ctx, room)
	if !ok {
		return nil, false
	}
	target := r.Slot(domain.Opposite(fromRole))
	if target == nil {
		return nil, false
	}
	return target, true
}

// ViewerFor returns the viewer peer currently registered for room, used by
// the engine to route a Detection Result.
func (b *BrokerService) ViewerFor(ctx context.Context, room domain.RoomID) (*domain.Peer, bool) {
	r, ok := b.registry.Get(ctx, room)
	if !ok || r.Viewer == nil {
		return nil, false
	}
	return r.Viewer, true
}
