package handler

import (
	"claimchat/backend/internal/auth"
	"claimchat/backend/internal/claims"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, claims.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "authentication required"
	case errors.Is(err, claims.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, claims.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, claims.ErrEmptyBody):
		status, msg = http.StatusBadRequest, "message body is empty"
	case errors.Is(err, claims.ErrRoomCreationFailed):
		msg = "failed to create chat room"
	case errors.Is(err, claims.ErrSendFailed):
		msg = "failed to send message"
	case errors.Is(err, claims.ErrLoadFailed):
		msg = "failed to load"
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
