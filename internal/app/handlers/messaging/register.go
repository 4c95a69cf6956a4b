package messaging

import (
	"log/slog"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/outbox"
	"chatrelay/internal/app/policies"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/domain/messages"
)

type Dependencies struct {
	Messages messages.Repository
	Pusher   policies.MessagePusher
	Uploader policies.ImageUploader
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger
}

// Register binds every messaging command and query to the buses.
func Register(cmdBus *commands.InMemoryBus, queryBus *queries.InMemoryBus, deps Dependencies) {
	commands.RegisterHandler[SendMessageCommand, messages.Message](cmdBus, SendMessageKey, SendMessageHandler{
		Messages: deps.Messages,
		Pusher:   deps.Pusher,
		Uploader: deps.Uploader,
		Outbox:   deps.Outbox,
		Encoder:  deps.Encoder,
		Logger:   deps.Logger,
	})
	commands.RegisterHandler[MarkReadCommand, int64](cmdBus, MarkReadKey, MarkReadHandler{
		Messages: deps.Messages,
		Outbox:   deps.Outbox,
		Encoder:  deps.Encoder,
		Logger:   deps.Logger,
	})
	queries.RegisterHandler[HistoryQuery, []messages.Message](queryBus, HistoryKey, HistoryHandler{Messages: deps.Messages})
	queries.RegisterHandler[UnreadCountsQuery, map[string]int](queryBus, UnreadCountsKey, UnreadCountsHandler{Messages: deps.Messages})
}
