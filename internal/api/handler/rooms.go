package handler

import (
	"claimchat/backend/internal/claims"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListItemRooms lists the rooms of an item for its reporter.
func (h *Handler) ListItemRooms(c *gin.Context) {
	ctx := c.Request.Context()
	role, err := h.Resolver.Resolve(ctx, c.Param("itemID"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !role.IsReporter {
		writeError(c, claims.ErrForbidden)
		return
	}

	rooms, err := h.Rooms.ListRoomsForReporter(ctx, role.Item.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) ListMyRooms(c *gin.Context) {
	viewer := identity(c)
	if viewer.ID == "" {
		writeError(c, claims.ErrUnauthenticated)
		return
	}
	rooms, err := h.Rooms.ListRoomsForUser(c.Request.Context(), viewer.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	room, _, err := h.Rooms.Participant(ctx, c.Param("roomID"), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.Messages.ListMessages(ctx, room.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

type sendRequest struct {
	Body string `json:"body"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := h.Messages.Send(c.Request.Context(), c.Param("roomID"), identity(c), req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ApproveRoom(c *gin.Context) {
	room, err := h.Rooms.SetApprovalStatus(c.Request.Context(), c.Param("roomID"), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetContactInfo returns the reporter's contact details to an approved claimer.
func (h *Handler) GetContactInfo(c *gin.Context) {
	viewer := identity(c)
	room, item, err := h.Rooms.Participant(c.Request.Context(), c.Param("roomID"), viewer)
	if err != nil {
		writeError(c, err)
		return
	}
	info, ok := claims.VisibleContactInfo(room, item.ContactProjection(), viewer.ID)
	if !ok {
		writeError(c, claims.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact_info": info})
}
