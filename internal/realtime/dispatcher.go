package realtime

import (
	"claimchat/backend/internal/models"
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrDispatcherClosed = errors.New("realtime: dispatcher closed")

// Dispatcher owns the single live subscription of one chat view. Switching
// rooms releases the previous subscription before the next one is made.
type Dispatcher struct {
	bus Bus

	mu     sync.Mutex
	sub    Subscription
	roomID string
	closed bool
}

func NewDispatcher(bus Bus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Switch subscribes to roomID and returns its event stream. Switching to the
// room that is already active returns the current stream.
func (d *Dispatcher) Switch(ctx context.Context, roomID string) (<-chan models.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}
	if d.sub != nil && d.roomID == roomID {
		return d.sub.Events(), nil
	}

	d.releaseLocked()

	sub, err := d.bus.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	d.sub = sub
	d.roomID = roomID
	return sub.Events(), nil
}

// Release drops the active subscription, if any. Safe to call repeatedly.
func (d *Dispatcher) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

// Close releases the subscription and refuses further switches.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
	d.closed = true
}

// Active returns the subscribed room, or "" when none.
func (d *Dispatcher) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roomID
}

func (d *Dispatcher) releaseLocked() {
	if d.sub == nil {
		return
	}
	if err := d.sub.Close(); err != nil {
		slog.Debug("ignoring error while releasing room subscription", "room_id", d.roomID, "error", err)
	}
	d.sub = nil
	d.roomID = ""
}
