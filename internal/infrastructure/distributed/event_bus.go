package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"detectmesh/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event carried over the event bus.
type EventType string

const (
	EventPeerJoined EventType = "peer.joined"
	EventPeerLeft   EventType = "peer.left"
)

// Event represents a distributed room-membership event, broadcast so that
// every broker instance behind a load balancer can keep its view of a room's
// occupancy consistent.
type Event struct {
	Type       EventType     `json:"type"`
	InstanceID string        `json:"instance_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Room       domain.RoomID `json:"room"`
	Role       domain.Role   `json:"role"`
	PeerID     domain.PeerID `json:"peer_id"`
}

// EventBus publishes and subscribes to room membership events over Redis
// pub/sub. It implements ports.EventPublisher.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channel    string
}

// NewEventBus creates a new event bus bound to a single instance identity.
func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channel:    "detectmesh:room-events",
	}
}

func (eb *EventBus) publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room", event.Room,
		"peer_id", event.PeerID,
	)

	return nil
}

// PublishPeerJoined implements ports.EventPublisher.
func (eb *EventBus) PublishPeerJoined(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error {
	return eb.publish(ctx, &Event{Type: EventPeerJoined, Room: room, Role: role, PeerID: peerID})
}

// PublishPeerLeft implements ports.EventPublisher.
func (eb *EventBus) PublishPeerLeft(ctx context.Context, room domain.RoomID, role domain.Role, peerID domain.PeerID) error {
	return eb.publish(ctx, &Event{Type: EventPeerLeft, Room: room, Role: role, PeerID: peerID})
}

// Subscribe blocks, invoking handler for every event published by another
// instance, until ctx is cancelled.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer func() {
		eb.pubsub.Close()
		eb.pubsub = nil
	}()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event", "type", event.Type, "error", err)
			}
		}
	}
}

// Close releases the active subscription, if any.
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
