package handler_test

import (
	"bytes"
	"claimchat/backend/internal/api/handler"
	"claimchat/backend/internal/auth"
	"claimchat/backend/internal/chathub"
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/models"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/retry"
	"claimchat/backend/internal/storage"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	tokens *auth.Issuer
	rooms  *claims.RoomService
	store  *storage.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.Migrate(db))
	require.NoError(t, db.Create(&models.Item{ID: "item-1", Name: "Keys", ReporterID: "reporter", ContactInfo: "reporter@example.com"}).Error)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	store := storage.NewStorageService(db)
	bus := realtime.NewLocalBus()
	messages := claims.NewMessageService(store, bus, node)
	rooms := claims.NewRoomService(store, messages, bus, retry.New(3, time.Millisecond))
	resolver := claims.NewResolver(auth.ContextProvider{}, store)
	hub := chathub.NewManagerService(resolver, chathub.SessionDeps{
		Rooms: rooms, Messages: messages, Bus: bus, Texts: localization.Default(), Lang: "en",
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	tokens := auth.NewIssuer("test-secret")
	router := gin.New()
	handler.NewHandler(hub, rooms, messages, store, tokens).Register(router)

	return &testAPI{router: router, tokens: tokens, rooms: rooms, store: store}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.tokens.Issue(models.Identity{ID: userID, DisplayName: userID})
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestIssueToken(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/token", "", gin.H{"display_name": "Olena"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}](t, w)
	identity, err := api.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, identity.ID)

	user, err := api.store.GetUserByID(context.Background(), resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Olena", user.DisplayName)

	w = api.do(t, http.MethodPost, "/token", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/token", "", gin.H{"display_name": "<script>alert(1)</script>"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing left after sanitizing")

	w = api.do(t, http.MethodPost, "/token", "", gin.H{"display_name": "<b>Tom</b> & Jerry"})
	require.Equal(t, http.StatusOK, w.Code)
	user, err = api.store.GetUserByID(context.Background(), decode[map[string]string](t, w)["user_id"])
	require.NoError(t, err)
	assert.Equal(t, "Tom &amp; Jerry", user.DisplayName)
}

func TestTelegramLink(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/me/telegram-link", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/me/telegram-link", "claimer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Token     string `json:"token"`
		Command   string `json:"command"`
		ExpiresIn int    `json:"expires_in"`
	}](t, w)
	assert.Equal(t, "/start "+resp.Token, resp.Command)
	assert.Positive(t, resp.ExpiresIn)

	userID, err := api.tokens.ParseLink(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "claimer", userID)

	req := httptest.NewRequest(http.MethodGet, "/me/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "link token cannot authenticate requests")
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/me/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me/rooms", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/items/item-1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	room, err := api.rooms.OpenRoom(ctx, "item-1", "claimer")
	require.NoError(t, err)
	roomPath := "/rooms/" + room.ID

	w := api.do(t, http.MethodGet, "/items/item-1/rooms", "reporter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rooms := decode[struct {
		Rooms []models.ClaimRoom `json:"rooms"`
	}](t, w)
	require.Len(t, rooms.Rooms, 1)

	w = api.do(t, http.MethodGet, "/items/item-1/rooms", "claimer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/items/nope/rooms", "claimer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, roomPath+"/contact", "claimer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "contact hidden before approval")

	w = api.do(t, http.MethodPost, roomPath+"/approve", "claimer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, roomPath+"/approve", "reporter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.ClaimRoom](t, w).IsApproved())

	w = api.do(t, http.MethodGet, roomPath+"/contact", "claimer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reporter@example.com", decode[map[string]string](t, w)["contact_info"])

	for _, other := range []string{"reporter", "stranger"} {
		w = api.do(t, http.MethodGet, roomPath+"/contact", other, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, other)
	}

	w = api.do(t, http.MethodPost, roomPath+"/messages", "claimer", gin.H{"body": "<i>Can we meet today?</i>"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Can we meet today?", decode[models.ChatMessage](t, w).Body)

	w = api.do(t, http.MethodPost, roomPath+"/messages", "claimer", gin.H{"body": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, roomPath+"/messages", "stranger", gin.H{"body": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, roomPath+"/messages", "reporter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Messages []models.ChatMessage `json:"messages"`
	}](t, w)
	require.Len(t, history.Messages, 3)
	assert.Equal(t, "Can we meet today?", history.Messages[2].Body)

	w = api.do(t, http.MethodGet, roomPath+"/messages", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/rooms/missing/messages", "claimer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, user := range []string{"claimer", "reporter"} {
		w = api.do(t, http.MethodGet, "/me/rooms", user, nil)
		require.Equal(t, http.StatusOK, w.Code)
		mine := decode[struct {
			Rooms []models.ClaimRoom `json:"rooms"`
		}](t, w)
		assert.Len(t, mine.Rooms, 1, user)
	}
}

func TestChatWebSocket(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/items/item-1/chat", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/items/item-1/chat?token="+api.token(t, "claimer"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame chathub.Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.State != nil && frame.State.Room != nil && len(frame.State.Messages) == 1 {
			assert.False(t, frame.State.ContactVisible)
			assert.Equal(t, "claimer", frame.State.Room.ClaimerID)
			break
		}
	}
}
