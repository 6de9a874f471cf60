package claims

import (
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/retry"
	"claimchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notifier tells the other party about room lifecycle changes. Implementations
// must not block the caller for long; failures are theirs to log.
type Notifier interface {
	RoomCreated(ctx context.Context, room models.ClaimRoom, item models.Item)
	RoomApproved(ctx context.Context, room models.ClaimRoom, item models.Item)
}

type RoomService struct {
	Store    storage.Storage
	Messages *MessageService
	Bus      realtime.Bus
	Retry    retry.Policy
	Notifier Notifier
	Texts    *localization.Localizer
	Lang     string
}

func NewRoomService(store storage.Storage, messages *MessageService, bus realtime.Bus, policy retry.Policy) *RoomService {
	return &RoomService{
		Store:    store,
		Messages: messages,
		Bus:      bus,
		Retry:    policy,
		Texts:    localization.Default(),
		Lang:     "en",
	}
}

// ListRoomsForReporter returns every room of the item, oldest first.
func (s *RoomService) ListRoomsForReporter(ctx context.Context, itemID string) ([]models.ClaimRoom, error) {
	rooms, err := s.Store.ListRoomsByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms of item %s: %w", ErrLoadFailed, itemID, err)
	}
	return rooms, nil
}

// ListRoomsForUser returns the rooms the user takes part in, as claimer or reporter.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID string) ([]models.ClaimRoom, error) {
	rooms, err := s.Store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms of user %s: %w", ErrLoadFailed, userID, err)
	}
	return rooms, nil
}

// FindRoomForClaimer returns the claimer's room; found=false is not an error.
func (s *RoomService) FindRoomForClaimer(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, bool, error) {
	room, err := s.Store.FindRoom(ctx, itemID, claimerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: room of %s on item %s: %w", ErrLoadFailed, claimerID, itemID, err)
	}
	return room, true, nil
}

// GetRoom loads a room by id.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.ClaimRoom, error) {
	room, err := s.Store.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: room %s: %w", ErrLoadFailed, roomID, err)
	}
	return room, nil
}

// Participant loads a room on behalf of viewer, who must be its claimer or
// the reporter of its item.
func (s *RoomService) Participant(ctx context.Context, roomID string, viewer models.Identity) (*models.ClaimRoom, models.Item, error) {
	if viewer.ID == "" {
		return nil, models.Item{}, ErrUnauthenticated
	}
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, models.Item{}, err
	}
	item, err := s.Store.GetItem(ctx, room.ItemID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, models.Item{}, fmt.Errorf("item %s: %w", room.ItemID, ErrNotFound)
	}
	if err != nil {
		return nil, models.Item{}, fmt.Errorf("%w: item %s: %w", ErrLoadFailed, room.ItemID, err)
	}
	if viewer.ID != room.ClaimerID && viewer.ID != item.ReporterID {
		return nil, models.Item{}, ErrForbidden
	}
	return room, *item, nil
}

// CreateRoom inserts the room for (itemID, claimerID). A uniqueness conflict
// is retried under the policy; each retry first looks the pair up again so a
// row created by a concurrent request is returned instead of a new one. The
// "room created" system message is written only by the call that inserted.
func (s *RoomService) CreateRoom(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, error) {
	var (
		room     *models.ClaimRoom
		inserted bool
	)

	err := s.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			existing, found, err := s.FindRoomForClaimer(ctx, itemID, claimerID)
			if err != nil {
				return err
			}
			if found {
				room = existing
				return nil
			}
		}

		candidate := &models.ClaimRoom{
			ItemID:         itemID,
			ClaimerID:      claimerID,
			Status:         models.RoomStatusPending,
			ApprovalStatus: models.ApprovalPending,
		}
		if err := s.Store.InsertRoom(ctx, candidate); err != nil {
			slog.WarnContext(ctx, "room insert failed",
				"item_id", itemID,
				"claimer_id", claimerID,
				"attempt", attempt,
				"max_attempts", s.Retry.Attempts(),
				"duplicate", errors.Is(err, storage.ErrDuplicate),
				"error", err)
			return err
		}
		room = candidate
		inserted = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoomCreationFailed, err)
	}

	if !inserted {
		slog.InfoContext(ctx, "room already existed, reusing it", "room_id", room.ID, "item_id", itemID)
		return room, nil
	}

	slog.InfoContext(ctx, "claim room created", "room_id", room.ID, "item_id", itemID, "claimer_id", claimerID)

	if _, err := s.Messages.AppendMessage(ctx, room.ID, claimerID, s.text("room_created"), true); err != nil {
		slog.ErrorContext(ctx, "failed to append room-created system message", "room_id", room.ID, "error", err)
	}

	if s.Notifier != nil {
		if item, err := s.Store.GetItem(ctx, itemID); err == nil {
			s.Notifier.RoomCreated(ctx, *room, *item)
		} else {
			slog.WarnContext(ctx, "skipping room-created notification", "item_id", itemID, "error", err)
		}
	}
	return room, nil
}

// OpenRoom is the claimer path: reuse the room for the pair or create it.
func (s *RoomService) OpenRoom(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, error) {
	room, found, err := s.FindRoomForClaimer(ctx, itemID, claimerID)
	if err != nil {
		return nil, err
	}
	if found {
		return room, nil
	}
	return s.CreateRoom(ctx, itemID, claimerID)
}

// SetApprovalStatus approves a room on behalf of caller, who must be the
// reporter of the room's item. Approving twice is a no-op.
func (s *RoomService) SetApprovalStatus(ctx context.Context, roomID string, caller models.Identity) (models.ClaimRoom, error) {
	if caller.ID == "" {
		return models.ClaimRoom{}, ErrUnauthenticated
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return models.ClaimRoom{}, err
	}

	item, err := s.Store.GetItem(ctx, room.ItemID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.ClaimRoom{}, fmt.Errorf("item %s: %w", room.ItemID, ErrNotFound)
	}
	if err != nil {
		return models.ClaimRoom{}, fmt.Errorf("loading item %s: %w", room.ItemID, err)
	}

	if !CanApprove(item.ContactProjection(), caller.ID) {
		slog.WarnContext(ctx, "approval refused for non-reporter", "room_id", roomID, "caller_id", caller.ID)
		return models.ClaimRoom{}, ErrForbidden
	}

	next, _ := Approve(room.ApprovalStatus)

	changed, err := s.Store.ApproveRoom(ctx, roomID)
	if err != nil {
		return models.ClaimRoom{}, fmt.Errorf("approving room %s: %w", roomID, err)
	}
	room.ApprovalStatus = next
	if !changed {
		return *room, nil
	}

	slog.InfoContext(ctx, "claim room approved", "room_id", roomID, "item_id", room.ItemID)

	if err := s.Bus.Publish(ctx, models.RoomUpdated(*room)); err != nil {
		slog.WarnContext(ctx, "failed to publish room update", "room_id", roomID, "error", err)
	}
	if _, err := s.Messages.AppendMessage(ctx, roomID, caller.ID, s.text("room_approved"), true); err != nil {
		slog.ErrorContext(ctx, "failed to append approval system message", "room_id", roomID, "error", err)
	}
	if s.Notifier != nil {
		s.Notifier.RoomApproved(ctx, *room, *item)
	}
	return *room, nil
}

func (s *RoomService) text(key string) string {
	if s.Texts == nil {
		return key
	}
	return s.Texts.GetString(s.Lang, key)
}
