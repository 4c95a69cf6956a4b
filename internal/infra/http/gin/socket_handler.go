package ginserver

import (
	"log/slog"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatrelay/internal/infra/ws"
)

// SocketHandler upgrades authenticated requests on /ws and serves them until
// the peer disconnects.
type SocketHandler struct {
	Hub      ws.Handler
	Upgrader websocket.Upgrader
	Options  ws.Options
	Logger   *slog.Logger
}

func (h SocketHandler) Upgrade(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	socket, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		}
		return
	}
	ws.Serve(c.Request.Context(), h.Hub, userID, socket, h.Options)
}

var _ SocketHTTP = SocketHandler{}
