package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/handlers/messaging"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/domain/messages"
)

// MessageHandler exposes the message router and unread tracker over REST.
// The :id path parameter is always the counterpart of the caller.
type MessageHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type sendMessageRequest struct {
	Text     string `json:"text"`
	Image    string `json:"image"`
	ImageRef string `json:"image_ref"`
}

type messageList struct {
	Items []messages.Message `json:"items"`
}

func (h MessageHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := messaging.SendMessageCommand{
		SenderID:    userID,
		ReceiverID:  strings.TrimSpace(c.Param("id")),
		Text:        req.Text,
		ImageRef:    req.ImageRef,
		InlineImage: req.Image,
		RequestKey:  c.GetHeader("Idempotency-Key"),
	}
	msg, err := commands.Dispatch[messaging.SendMessageCommand, messages.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "send message", "receiver_id", cmd.ReceiverID)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h MessageHandler) History(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	q := messaging.HistoryQuery{ViewerID: userID, CounterpartID: strings.TrimSpace(c.Param("id"))}
	items, err := queries.Ask[messaging.HistoryQuery, []messages.Message](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err, "load history", "counterpart_id", q.CounterpartID)
		return
	}
	c.JSON(http.StatusOK, messageList{Items: items})
}

func (h MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := messaging.MarkReadCommand{OwnerID: userID, CounterpartID: strings.TrimSpace(c.Param("id"))}
	updated, err := commands.Dispatch[messaging.MarkReadCommand, int64](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "counterpart_id", cmd.CounterpartID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h MessageHandler) Unread(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	counts, err := queries.Ask[messaging.UnreadCountsQuery, map[string]int](c.Request.Context(), h.Queries, messaging.UnreadCountsQuery{ViewerID: userID})
	if err != nil {
		respondError(c, h.Logger, err, "unread counts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

var _ MessageHTTP = MessageHandler{}
