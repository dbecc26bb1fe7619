package redis

import (
	"context"
	"encoding/json"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const roomTTL = 6 * time.Hour

// RoomRegistry is the distributed ports.RoomRegistry implementation backed
// by Redis, used when multiple broker instances share room state behind a
// load balancer. Per-room mutation is a plain GET of the room record
// followed by a SET, with no Lua script and no lock, so concurrent
// Join/Leave calls for one room from different instances are not
// serialized against each other.
type RoomRegistry struct {
	client *redis.Client
}

func NewRoomRegistry(client *redis.Client) ports.RoomRegistry {
	return &RoomRegistry{client: client}
}

func roomKey(room domain.RoomID) string { return "detectmesh:room:" + string(room) }
func peerKey(peer domain.PeerID) string { return "detectmesh:peer:" + string(peer) }

type roomRecord struct {
	ID      domain.RoomID `json:"id"`
	Capture *domain.Peer  `json:"capture,omitempty"`
	Viewer  *domain.Peer  `json:"viewer,omitempty"`
}

func (rr *roomRecord) toDomain() *domain.Room {
	return &domain.Room{ID: rr.ID, Capture: rr.Capture, Viewer: rr.Viewer}
}

func (r *RoomRegistry) load(ctx context.Context, room domain.RoomID) (*roomRecord, error) {
	data, err := r.client.Get(ctx, roomKey(room)).Bytes()
	if err == redis.Nil {
		return &roomRecord{ID: room}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec roomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RoomRegistry) save(ctx context.Context, rec *roomRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, roomKey(rec.ID), data, roomTTL).Err()
}

// Join is not fully atomic across a read-modify-write pair on a distributed
// store without a Lua script keyed on the room; given this pack's Redis
// client offers no existing Lua-script wrapper beyond pkg/distributed's
// lock primitive, callers needing strict cross-instance atomicity should
// pair Join with ports.DistributedLock keyed on the room ID, held for the
// duration of the call (the broker calls Join without taking one).
func (r *RoomRegistry) Join(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, role domain.Role) (*domain.Peer, *domain.Peer, error) {
	rec, err := r.load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	room := rec.toDomain()
	incumbent := room.Slot(role)
	other := room.Slot(domain.Opposite(role))

	newPeer := &domain.Peer{ID: peerID, Role: role, Room: roomID, JoinedAt: time.Now()}
	switch role {
	case domain.RoleCapture:
		rec.Capture = newPeer
	case domain.RoleViewer:
		rec.Viewer = newPeer
	}

	if err := r.save(ctx, rec); err != nil {
		return nil, nil, err
	}

	if incumbent != nil {
		r.client.Del(ctx, peerKey(incumbent.ID))
	}
	if err := r.client.Set(ctx, peerKey(peerID), string(roomID), roomTTL).Err(); err != nil {
		return nil, nil, err
	}

	return incumbent, other, nil
}

func (r *RoomRegistry) Leave(ctx context.Context, peerID domain.PeerID) (domain.RoomID, *domain.Peer, bool) {
	roomIDStr, err := r.client.Get(ctx, peerKey(peerID)).Result()
	if err != nil {
		return "", nil, false
	}
	roomID := domain.RoomID(roomIDStr)
	r.client.Del(ctx, peerKey(peerID))

	rec, err := r.load(ctx, roomID)
	if err != nil {
		return roomID, nil, true
	}

	if rec.Capture != nil && rec.Capture.ID == peerID {
		rec.Capture = nil
	}
	if rec.Viewer != nil && rec.Viewer.ID == peerID {
		rec.Viewer = nil
	}

	room := rec.toDomain()
	if room.Empty() {
		r.client.Del(ctx, roomKey(roomID))
		return roomID, nil, true
	}

	if err := r.save(ctx, rec); err != nil {
		return roomID, nil, true
	}

	remaining := rec.Capture
	if remaining == nil {
		remaining = rec.Viewer
	}
	return roomID, remaining, true
}

func (r *RoomRegistry) Get(ctx context.Context, room domain.RoomID) (*domain.Room, bool) {
	rec, err := r.load(ctx, room)
	if err != nil {
		return nil, false
	}
	if rec.Capture == nil && rec.Viewer == nil {
		return nil, false
	}
	return rec.toDomain(), true
}

func (r *RoomRegistry) PeerRoom(ctx context.Context, peerID domain.PeerID) (domain.RoomID, bool) {
	roomIDStr, err := r.client.Get(ctx, peerKey(peerID)).Result()
	if err != nil {
		return "", false
	}
	return domain.RoomID(roomIDStr), true
}
