package memory

import (
	"context"
	"sync"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
)

// RoomRegistry is the default, single-instance implementation of
// ports.RoomRegistry: an in-process map guarded by a mutex. It is the
// registry used when config.Redis.Enabled is false.
type RoomRegistry struct {
	mu sync.Mutex

	rooms     map[domain.RoomID]*domain.Room
	peerRooms map[domain.PeerID]domain.RoomID
}

func NewRoomRegistry() ports.RoomRegistry {
	return &RoomRegistry{
		rooms:     make(map[domain.RoomID]*domain.Room),
		peerRooms: make(map[domain.PeerID]domain.RoomID),
	}
}

func (r *RoomRegistry) Join(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, role domain.Role) (*domain.Peer, *domain.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		room = &domain.Room{ID: roomID}
		r.rooms[roomID] = room
	}

	incumbent := room.Slot(role)
	other := room.Slot(domain.Opposite(role))

	newPeer := &domain.Peer{ID: peerID, Role: role, Room: roomID, JoinedAt: time.Now()}

	switch role {
	case domain.RoleCapture:
		room.Capture = newPeer
	case domain.RoleViewer:
		room.Viewer = newPeer
	}

	if incumbent != nil {
		delete(r.peerRooms, incumbent.ID)
	}
	r.peerRooms[peerID] = roomID

	return incumbent, other, nil
}

func (r *RoomRegistry) Leave(ctx context.Context, peerID domain.PeerID) (domain.RoomID, *domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.peerRooms[peerID]
	if !ok {
		return "", nil, false
	}
	delete(r.peerRooms, peerID)

	room, ok := r.rooms[roomID]
	if !ok {
		return roomID, nil, true
	}

	if room.Capture != nil && room.Capture.ID == peerID {
		room.Capture = nil
	}
	if room.Viewer != nil && room.Viewer.ID == peerID {
		room.Viewer = nil
	}

	if room.Empty() {
		delete(r.rooms, roomID)
		return roomID, nil, true
	}

	remaining := room.Capture
	if remaining == nil {
		remaining = room.Viewer
	}
	return roomID, remaining, true
}

func (r *RoomRegistry) Get(ctx context.Context, roomID domain.RoomID) (*domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	clone := *room
	return &clone, true
}

func (r *RoomRegistry) PeerRoom(ctx context.Context, peerID domain.PeerID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.peerRooms[peerID]
	return roomID, ok
}
