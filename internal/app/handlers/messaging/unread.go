package messaging

import (
	"context"
	"strings"

	"chatrelay/internal/domain/messages"
)

const UnreadCountsKey = "unread.counts"

type UnreadCountsQuery struct {
	ViewerID string
}

func (UnreadCountsQuery) Key() string { return UnreadCountsKey }

func (q UnreadCountsQuery) ActorID() string { return q.ViewerID }

// UnreadCountsHandler recomputes the viewer's unread counts from storage on every call.
type UnreadCountsHandler struct {
	Messages messages.Repository
}

func (h UnreadCountsHandler) Handle(ctx context.Context, q UnreadCountsQuery) (map[string]int, error) {
	viewer := strings.TrimSpace(q.ViewerID)
	if viewer == "" {
		return nil, messages.ErrParticipantRequired
	}
	counts, err := h.Messages.UnreadCounts(ctx, viewer)
	if err != nil {
		return nil, messages.WrapStorage("unread counts", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}
