package realtime_test

import (
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return models.Event{}
	}
}

func TestDispatcher_SwitchReleasesPrevious(t *testing.T) {
	bus := realtime.NewLocalBus()
	d := realtime.NewDispatcher(bus)
	ctx := context.Background()

	first, err := d.Switch(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("room-1"))

	second, err := d.Switch(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, 0, bus.Subscribers("room-1"), "previous subscription released before the new one")
	assert.Equal(t, 1, bus.Subscribers("room-2"))
	assert.Equal(t, "room-2", d.Active())

	_, open := <-first
	assert.False(t, open, "released stream is closed")

	require.NoError(t, bus.Publish(ctx, models.MessageInserted(models.ChatMessage{ID: "m1", RoomID: "room-2", Body: "hi"})))
	ev := receive(t, second)
	assert.Equal(t, "m1", ev.Message.ID)
}

func TestDispatcher_SwitchSameRoomIsNoop(t *testing.T) {
	bus := realtime.NewLocalBus()
	d := realtime.NewDispatcher(bus)

	a, err := d.Switch(context.Background(), "room-1")
	require.NoError(t, err)
	b, err := d.Switch(context.Background(), "room-1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, bus.Subscribers("room-1"))
}

func TestDispatcher_ReleaseIsIdempotent(t *testing.T) {
	bus := realtime.NewLocalBus()
	d := realtime.NewDispatcher(bus)

	_, err := d.Switch(context.Background(), "room-1")
	require.NoError(t, err)

	d.Release()
	d.Release()
	assert.Equal(t, "", d.Active())
	assert.Equal(t, 0, bus.Subscribers("room-1"))

	d.Close()
	d.Close()
	_, err = d.Switch(context.Background(), "room-1")
	assert.ErrorIs(t, err, realtime.ErrDispatcherClosed)
}

type failingBus struct{ realtime.Bus }

func (failingBus) Subscribe(ctx context.Context, roomID string) (realtime.Subscription, error) {
	return nil, errors.New("connection refused")
}

func TestDispatcher_FailedSubscribeLeavesNothingActive(t *testing.T) {
	d := realtime.NewDispatcher(failingBus{})

	_, err := d.Switch(context.Background(), "room-1")
	assert.Error(t, err)
	assert.Equal(t, "", d.Active())
}

func TestLocalBus_OnlyDeliversToRoom(t *testing.T) {
	bus := realtime.NewLocalBus()
	ctx := context.Background()

	sub1, err := bus.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, "room-2")
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, bus.Publish(ctx, models.RoomUpdated(models.ClaimRoom{ID: "room-1", ApprovalStatus: models.ApprovalApproved})))

	ev := receive(t, sub1.Events())
	assert.Equal(t, models.EventRoomUpdated, ev.Type)

	select {
	case ev := <-sub2.Events():
		t.Fatalf("unexpected event for room-2: %+v", ev)
	default:
	}

	require.NoError(t, sub1.Close())
	require.NoError(t, sub1.Close())
	// Publishing after close must not panic on the closed channel.
	require.NoError(t, bus.Publish(ctx, models.RoomUpdated(models.ClaimRoom{ID: "room-1"})))
}

func fill(t *testing.T, bus *realtime.LocalBus, roomID string) {
	t.Helper()
	for i := 0; i < config.SessionEventBuffer; i++ {
		require.NoError(t, bus.Publish(context.Background(), models.RoomUpdated(models.ClaimRoom{ID: roomID})))
	}
}

func TestLocalBus_FullBufferHoldsPublisher(t *testing.T) {
	bus := realtime.NewLocalBus()
	sub, err := bus.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	defer sub.Close()
	fill(t, bus, "room-1")

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), models.MessageInserted(models.ChatMessage{ID: "last", RoomID: "room-1"}))
	}()

	select {
	case <-published:
		t.Fatal("publish returned while the subscriber buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	var last models.Event
	for i := 0; i <= config.SessionEventBuffer; i++ {
		last = receive(t, sub.Events())
	}
	require.NoError(t, <-published)
	require.NotNil(t, last.Message)
	assert.Equal(t, "last", last.Message.ID, "no event dropped")
}

func TestLocalBus_CloseReleasesBlockedPublisher(t *testing.T) {
	bus := realtime.NewLocalBus()
	sub, err := bus.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	fill(t, bus, "room-1")

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), models.RoomUpdated(models.ClaimRoom{ID: "room-1"}))
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, sub.Close())
	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after close")
	}
	assert.Equal(t, 0, bus.Subscribers("room-1"))
}

func TestLocalBus_PublishGivesUpWithContext(t *testing.T) {
	bus := realtime.NewLocalBus()
	sub, err := bus.Subscribe(context.Background(), "room-1")
	require.NoError(t, err)
	defer sub.Close()
	fill(t, bus, "room-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = bus.Publish(ctx, models.RoomUpdated(models.ClaimRoom{ID: "room-1"}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
