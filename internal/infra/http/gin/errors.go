package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/domain/auth"
	"chatrelay/internal/domain/messages"
)

func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, messages.ErrInvalidPayload),
		errors.Is(err, messages.ErrParticipantRequired),
		errors.Is(err, messages.ErrSelfMessage),
		errors.Is(err, messages.ErrCounterpartRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		if logger != nil {
			logger.ErrorContext(c.Request.Context(), "request failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
