package claims

import (
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// NormalizeBody trims surrounding whitespace. Bodies are plain text and are
// otherwise stored as typed; clients escape them when rendering. Placeholders
// and stored rows both go through it so their bodies compare equal.
func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

type MessageService struct {
	store storage.Storage
	bus   realtime.Bus
	ids   *snowflake.Node
}

func NewMessageService(store storage.Storage, bus realtime.Bus, ids *snowflake.Node) *MessageService {
	return &MessageService{store: store, bus: bus, ids: ids}
}

// ListMessages returns the full history of a room in createdAt order.
func (s *MessageService) ListMessages(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	history, err := s.store.GetChatHistory(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: room %s: %w", ErrLoadFailed, roomID, err)
	}
	return history, nil
}

// AppendMessage persists a message and announces it on the room channel.
// The returned record is authoritative.
func (s *MessageService) AppendMessage(ctx context.Context, roomID, senderID, body string, isSystem bool) (models.ChatMessage, error) {
	body = NormalizeBody(body)
	if body == "" {
		return models.ChatMessage{}, ErrEmptyBody
	}

	msg := models.ChatMessage{
		RoomID:          roomID,
		SenderID:        senderID,
		Body:            body,
		IsSystemMessage: isSystem,
	}
	if s.ids != nil {
		msg.Seq = s.ids.Generate().Int64()
	}

	if err := s.store.SaveMessage(ctx, &msg); err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	// The row is the source of truth; a lost notification only delays other views.
	if err := s.bus.Publish(ctx, models.MessageInserted(msg)); err != nil {
		slog.WarnContext(ctx, "failed to publish message event", "room_id", roomID, "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

// Send appends a user message after checking that sender takes part in the room.
func (s *MessageService) Send(ctx context.Context, roomID string, sender models.Identity, body string) (models.ChatMessage, error) {
	if sender.ID == "" {
		return models.ChatMessage{}, ErrUnauthenticated
	}
	if NormalizeBody(body) == "" {
		return models.ChatMessage{}, ErrEmptyBody
	}

	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ChatMessage{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
		}
		return models.ChatMessage{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if sender.ID != room.ClaimerID {
		item, err := s.store.GetItem(ctx, room.ItemID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return models.ChatMessage{}, fmt.Errorf("item %s: %w", room.ItemID, ErrNotFound)
			}
			return models.ChatMessage{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if sender.ID != item.ReporterID {
			return models.ChatMessage{}, ErrForbidden
		}
	}

	return s.AppendMessage(ctx, roomID, sender.ID, body, false)
}
