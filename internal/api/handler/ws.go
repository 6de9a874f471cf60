package handler

import (
	"claimchat/backend/internal/chathub"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin; the bearer token is what authorizes the connection.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket opens a chat session on the item and binds it to a websocket.
// Role resolution happens before the upgrade so failures get a status code.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	session, err := h.Hub.OpenChat(c.Request.Context(), c.Param("itemID"))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "item_id", session.ItemID(), "error", err)
		h.Hub.Unregister(session)
		return
	}

	chathub.NewWebSocketClient(conn, h.Hub, session).Run()
}
