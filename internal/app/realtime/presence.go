package realtime

import (
	"context"
	"log/slog"
)

// Presence pushes the full online set to every connection after a registry change.
type Presence struct {
	Registry *Registry
	Logger   *slog.Logger
}

// Broadcast sends one presence.update to every registered connection. Push
// failures are logged and otherwise ignored.
func (p Presence) Broadcast(ctx context.Context) {
	snap, conns := p.Registry.view()
	env, err := NewEnvelope(EventPresenceUpdate, "", snap)
	if err != nil {
		p.log().ErrorContext(ctx, "encode presence", "error", err)
		return
	}
	for _, c := range conns {
		if err := c.Send(env); err != nil {
			p.log().DebugContext(ctx, "presence push dropped", "conn_id", c.ID(), "error", err)
		}
	}
}

func (p Presence) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
