package claims_test

import (
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/retry"
	"claimchat/backend/internal/storage"
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) ListRoomsByItem(ctx context.Context, itemID string) ([]models.ClaimRoom, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ClaimRoom), args.Error(1)
}

func (m *MockStorage) ListRoomsForUser(ctx context.Context, userID string) ([]models.ClaimRoom, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ClaimRoom), args.Error(1)
}

func (m *MockStorage) FindRoom(ctx context.Context, itemID, claimerID string) (*models.ClaimRoom, error) {
	args := m.Called(ctx, itemID, claimerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClaimRoom), args.Error(1)
}

func (m *MockStorage) GetRoomByID(ctx context.Context, roomID string) (*models.ClaimRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClaimRoom), args.Error(1)
}

func (m *MockStorage) InsertRoom(ctx context.Context, room *models.ClaimRoom) error {
	args := m.Called(ctx, room)
	if args.Error(0) == nil && room.ID == "" {
		room.ID = "room-" + room.ClaimerID
	}
	return args.Error(0)
}

func (m *MockStorage) ApproveRoom(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil {
		if msg.ID == "" {
			msg.ID = "msg-" + msg.Body
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
	}
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockStorage) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockStorage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUserIfNotExists(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) LinkTelegramChat(ctx context.Context, userID string, chatID int64, language string) error {
	args := m.Called(ctx, userID, chatID, language)
	return args.Error(0)
}

// MockNotifier records lifecycle notifications.
type MockNotifier struct {
	mock.Mock
}

func (n *MockNotifier) RoomCreated(ctx context.Context, room models.ClaimRoom, item models.Item) {
	n.Called(room.ID, item.ID)
}

func (n *MockNotifier) RoomApproved(ctx context.Context, room models.ClaimRoom, item models.Item) {
	n.Called(room.ID, item.ID)
}

// staticIdentity is an IdentityProvider with a fixed caller.
type staticIdentity struct {
	identity models.Identity
	ok       bool
}

func (s staticIdentity) CurrentIdentity(ctx context.Context) (models.Identity, bool) {
	return s.identity, s.ok
}

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func fastRetry() retry.Policy {
	return retry.New(3, time.Millisecond)
}

func newServices(t *testing.T, store storage.Storage, bus realtime.Bus) (*claims.RoomService, *claims.MessageService) {
	t.Helper()
	messages := claims.NewMessageService(store, bus, testNode(t))
	rooms := claims.NewRoomService(store, messages, bus, fastRetry())
	return rooms, messages
}

func newSQLiteStore(t *testing.T) *storage.Service {
	t.Helper()
	db, err := storage.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.Migrate(db))
	return storage.NewStorageService(db)
}
