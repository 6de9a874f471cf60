package chathub_test

import (
	"claimchat/backend/internal/chathub"
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/retry"
	"claimchat/backend/internal/storage"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

// faultyStore wraps a real store and lets tests inject failures and delays.
type faultyStore struct {
	storage.Storage

	mu              sync.Mutex
	insertConflicts int
	historyErr      error
	listErr         error
	beforeSave      func(msg *models.ChatMessage) error

	saves atomic.Int32
}

func (f *faultyStore) InsertRoom(ctx context.Context, room *models.ClaimRoom) error {
	f.mu.Lock()
	if f.insertConflicts > 0 {
		f.insertConflicts--
		f.mu.Unlock()
		return storage.ErrDuplicate
	}
	f.mu.Unlock()
	return f.Storage.InsertRoom(ctx, room)
}

func (f *faultyStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	hook := f.beforeSave
	f.mu.Unlock()
	if hook != nil {
		if err := hook(msg); err != nil {
			return err
		}
	}
	f.saves.Add(1)
	return f.Storage.SaveMessage(ctx, msg)
}

func (f *faultyStore) GetChatHistory(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	err := f.historyErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Storage.GetChatHistory(ctx, roomID)
}

func (f *faultyStore) ListRoomsByItem(ctx context.Context, itemID string) ([]models.ClaimRoom, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Storage.ListRoomsByItem(ctx, itemID)
}

func (f *faultyStore) set(apply func(f *faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f)
}

type identityKey struct{}

// ctxIdentities reads the caller from the context, like the auth middleware does.
type ctxIdentities struct{}

func (ctxIdentities) CurrentIdentity(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

func as(userID string) context.Context {
	return context.WithValue(context.Background(), identityKey{}, models.Identity{ID: userID, DisplayName: userID})
}

type fixture struct {
	store    *faultyStore
	bus      *realtime.LocalBus
	rooms    *claims.RoomService
	messages *claims.MessageService
	deps     chathub.SessionDeps
	item     models.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storage.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.Migrate(db))

	item := models.Item{ID: "item-1", Name: "Blue backpack", ReporterID: "reporter", ContactInfo: "call 555-0100"}
	require.NoError(t, db.Create(&item).Error)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	store := &faultyStore{Storage: storage.NewStorageService(db)}
	bus := realtime.NewLocalBus()
	messages := claims.NewMessageService(store, bus, node)
	rooms := claims.NewRoomService(store, messages, bus, retry.New(3, time.Millisecond))

	return &fixture{
		store:    store,
		bus:      bus,
		rooms:    rooms,
		messages: messages,
		item:     item,
		deps: chathub.SessionDeps{
			Rooms:    rooms,
			Messages: messages,
			Bus:      bus,
			Texts:    localization.Default(),
			Lang:     "en",
		},
	}
}

func (f *fixture) role(userID string) claims.Role {
	return claims.Role{
		Identity:   models.Identity{ID: userID, DisplayName: userID},
		Item:       f.item,
		IsReporter: userID == f.item.ReporterID,
	}
}

func (f *fixture) open(t *testing.T, userID string) *chathub.Session {
	t.Helper()
	s := chathub.NewSession(f.role(userID), f.deps)
	t.Cleanup(s.Close)
	return s
}

func (f *fixture) resolver() *claims.Resolver {
	return claims.NewResolver(ctxIdentities{}, f.store)
}

// waitFor polls the session until cond holds for its current state.
func waitFor(t *testing.T, s *chathub.Session, cond func(chathub.State) bool, msg string) chathub.State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.State()) }, 2*time.Second, 5*time.Millisecond, msg)
	return s.State()
}

func ready(st chathub.State) bool {
	return !st.Loading && st.Room != nil
}

func withBody(st chathub.State, body string) []models.ChatMessage {
	var out []models.ChatMessage
	for _, m := range st.Messages {
		if m.Body == body {
			out = append(out, m)
		}
	}
	return out
}
