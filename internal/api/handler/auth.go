package handler

import (
	"claimchat/backend/internal/auth"
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/models"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Display names end up in other users' views and notifications, so markup is
// stripped and the rest is stored HTML-escaped.
var namePolicy = bluemonday.StrictPolicy()

// Authenticate attaches the bearer token's identity to the request context.
// Requests without a token pass through anonymous; the operations decide.
// Browsers cannot set headers on websocket upgrades, so ?token= is accepted too.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			c.Next()
			return
		}

		identity, err := h.Tokens.Parse(token)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

type tokenRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=64"`
}

// IssueToken registers a user under a fresh id and returns a token for it.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	name := strings.TrimSpace(namePolicy.Sanitize(req.DisplayName))
	if name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}

	user := models.User{ID: uuid.NewString(), DisplayName: name}
	if err := h.Storage.SaveUserIfNotExists(c.Request.Context(), &user); err != nil {
		writeError(c, err)
		return
	}

	token, err := h.Tokens.Issue(user.Identity())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": user.ID})
}

// TelegramLink issues a link token for the caller. Sending "/start <token>" to
// the bot links the chat it was sent from.
func (h *Handler) TelegramLink(c *gin.Context) {
	viewer := identity(c)
	if viewer.ID == "" {
		writeError(c, claims.ErrUnauthenticated)
		return
	}
	token, err := h.Tokens.IssueLink(viewer.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"command":    "/start " + token,
		"expires_in": int(h.Tokens.LinkTTL().Seconds()),
	})
}

func identity(c *gin.Context) models.Identity {
	id, _ := auth.FromContext(c.Request.Context())
	return id
}
