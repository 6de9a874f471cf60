// Package realtime delivers room events (new messages, room updates) to
// subscribed chat sessions over Redis Pub/Sub.
package realtime

import (
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "claimchat:room:"

// Bus is the event-delivery channel: publish by room, subscribe by room.
type Bus interface {
	Publish(ctx context.Context, ev models.Event) error
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Subscription delivers events for one room until closed.
// Close is synchronous and idempotent.
type Subscription interface {
	Events() <-chan models.Event
	Close() error
}

func Channel(roomID string) string {
	return channelPrefix + roomID
}

type RedisBus struct {
	Redis *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{Redis: rdb}
}

// Publish serializes the event to JSON and publishes it on the room channel.
func (b *RedisBus) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.Redis.Publish(ctx, Channel(ev.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("publishing %s for room %s: %w", ev.Type, ev.RoomID, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	pubsub := b.Redis.Subscribe(ctx, Channel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to room %s: %w", roomID, err)
	}

	sub := &redisSubscription{
		roomID: roomID,
		pubsub: pubsub,
		events: make(chan models.Event, config.SessionEventBuffer),
		done:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	roomID string
	pubsub *redis.PubSub
	events chan models.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *redisSubscription) Events() <-chan models.Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
		s.wg.Wait()
	})
	return err
}

func (s *redisSubscription) pump() {
	defer s.wg.Done()
	defer close(s.events)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("dropping undecodable room event", "room_id", s.roomID, "error", err)
				continue
			}
			if ev.RoomID != s.roomID {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}
