package realtime

import (
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/models"
	"context"
	"log/slog"
	"sync"
)

// LocalBus is an in-process Bus for single-instance deployments without Redis.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string]map[*localSubscription]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSubscription]struct{})}
}

// Publish hands ev to every subscriber of its room. A subscriber with a full
// buffer holds the publisher until it has room again or its subscription
// closes. A done ctx ends the wait with an error.
func (b *LocalBus) Publish(ctx context.Context, ev models.Event) error {
	b.mu.RLock()
	subs := make([]*localSubscription, 0, len(b.subs[ev.RoomID]))
	for sub := range b.subs[ev.RoomID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.deliver(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &localSubscription{
		bus:    b,
		roomID: roomID,
		events: make(chan models.Event, config.SessionEventBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[*localSubscription]struct{})
	}
	b.subs[roomID][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Subscribers reports how many live subscriptions a room has.
func (b *LocalBus) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomID])
}

func (b *LocalBus) remove(sub *localSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.subs[sub.roomID]; m != nil {
		delete(m, sub)
		if len(m) == 0 {
			delete(b.subs, sub.roomID)
		}
	}
}

type localSubscription struct {
	bus    *LocalBus
	roomID string
	events chan models.Event
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (s *localSubscription) Events() <-chan models.Event { return s.events }

func (s *localSubscription) deliver(ctx context.Context, ev models.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		slog.Warn("room event not delivered", "room_id", s.roomID, "type", ev.Type, "error", ctx.Err())
		return ctx.Err()
	}
}

// Close unblocks pending deliveries before closing the event channel.
func (s *localSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.events)
	s.bus.remove(s)
	return nil
}
