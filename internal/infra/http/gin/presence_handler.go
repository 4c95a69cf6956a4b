package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/app/realtime"
)

type PresenceSource interface {
	Presence() realtime.PresencePayload
}

type PresenceHandler struct {
	Source PresenceSource
}

func (h PresenceHandler) Snapshot(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.Source.Presence())
}

var _ PresenceHTTP = PresenceHandler{}
