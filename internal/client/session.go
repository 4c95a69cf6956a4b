package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"chatrelay/internal/app/realtime"
	"chatrelay/internal/domain/messages"
)

var ErrNoConversation = errors.New("client: no conversation selected")

// Session drives one signed-in user: REST calls for history and sends, the
// live connection for events and typing signals.
type Session struct {
	API    *API
	Conn   *Conn
	State  *State
	Typing *Debouncer
	Logger *slog.Logger
}

func NewSession(self string, api *API, conn *Conn, logger *slog.Logger, opts ...StateOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]StateOption{WithStateLogger(logger)}, opts...)
	return &Session{
		API:    api,
		Conn:   conn,
		State:  NewState(self, api, opts...),
		Typing: NewDebouncer(conn, WithDebouncerLogger(logger)),
		Logger: logger,
	}
}

// Sync loads the authoritative unread counts. Call it after every (re)connect.
func (s *Session) Sync(ctx context.Context) error {
	counts, err := s.API.Unread(ctx)
	if err != nil {
		return err
	}
	s.State.Hydrate(counts)
	return nil
}

// Open switches to the conversation with counterpart before loading its
// history, so messages delivered during the fetch land in the conversation.
func (s *Session) Open(ctx context.Context, counterpart string) error {
	s.Typing.Stop()
	s.State.Activate(ctx, counterpart)
	history, err := s.API.History(ctx, counterpart)
	if err != nil {
		return err
	}
	s.State.LoadHistory(counterpart, history)
	return nil
}

// Input reports a keystroke in the open conversation.
func (s *Session) Input() {
	if active := s.State.Active(); active != "" {
		s.Typing.InputChanged(active)
	}
}

func (s *Session) Send(ctx context.Context, in SendInput) (messages.Message, error) {
	active := s.State.Active()
	if active == "" {
		return messages.Message{}, ErrNoConversation
	}
	s.Typing.Sent(active)
	msg, err := s.API.Send(ctx, active, in, uuid.NewString())
	if err != nil {
		return messages.Message{}, err
	}
	s.State.AppendSent(msg)
	return msg, nil
}

// Run applies live events until the connection ends.
func (s *Session) Run(ctx context.Context) error {
	defer s.Typing.Stop()
	return s.Conn.Run(ctx, func(env realtime.Envelope) {
		if err := s.State.Apply(ctx, env); err != nil {
			s.Logger.Warn("bad event", "type", env.Type, "error", err)
		}
		if env.Type == realtime.EventError {
			var p realtime.ErrorPayload
			if env.Decode(&p) == nil {
				s.Logger.Warn("server error", "code", p.Code, "message", p.Message, "ref", env.Ref)
			}
		}
	})
}
