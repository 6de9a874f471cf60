package handler

import (
	"claimchat/backend/internal/auth"
	"claimchat/backend/internal/chathub"
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler holds what the HTTP layer talks to.
type Handler struct {
	Hub      *chathub.ManagerService
	Resolver *claims.Resolver
	Rooms    *claims.RoomService
	Messages *claims.MessageService
	Storage  storage.Storage
	Tokens   *auth.Issuer
}

func NewHandler(hub *chathub.ManagerService, rooms *claims.RoomService, messages *claims.MessageService, store storage.Storage, tokens *auth.Issuer) *Handler {
	return &Handler{
		Hub:      hub,
		Resolver: hub.Resolver,
		Rooms:    rooms,
		Messages: messages,
		Storage:  store,
		Tokens:   tokens,
	}
}

// Register mounts the API on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/token", h.IssueToken)

	api := r.Group("/", h.Authenticate())
	api.GET("/items/:itemID/chat", h.ServeWebSocket)
	api.GET("/items/:itemID/rooms", h.ListItemRooms)
	api.GET("/rooms/:roomID/messages", h.ListMessages)
	api.POST("/rooms/:roomID/messages", h.SendMessage)
	api.POST("/rooms/:roomID/approve", h.ApproveRoom)
	api.GET("/rooms/:roomID/contact", h.GetContactInfo)
	api.GET("/me/rooms", h.ListMyRooms)
	api.GET("/me/telegram-link", h.TelegramLink)
}
