package client

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"chatrelay/internal/app/realtime"
	"chatrelay/internal/domain/messages"
)

const DefaultTypingTTL = 5 * time.Second

type TypingState int

const (
	Idle TypingState = iota
	PeerTyping
)

func (s TypingState) String() string {
	if s == PeerTyping {
		return "typing"
	}
	return "idle"
}

// ReadMarker clears the server-side unread flag for a conversation.
type ReadMarker interface {
	MarkRead(ctx context.Context, counterpartID string) (int64, error)
}

// State mirrors what one signed-in user sees: the open conversation, unread
// counters, the online set and whether the open counterpart is typing.
type State struct {
	self      string
	marker    ReadMarker
	typingTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu              sync.Mutex
	active          string
	conversation    []messages.Message
	unread          map[string]int
	online          []string
	presenceVersion uint64
	typing          bool
	typingSince     time.Time
	onChange        func()
}

type StateOption func(*State)

func WithTypingTTL(d time.Duration) StateOption {
	return func(s *State) {
		if d > 0 {
			s.typingTTL = d
		}
	}
}

func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStateLogger(l *slog.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOnChange registers a callback run after every visible change.
func WithOnChange(f func()) StateOption {
	return func(s *State) { s.onChange = f }
}

func NewState(self string, marker ReadMarker, opts ...StateOption) *State {
	s := &State{
		self:      self,
		marker:    marker,
		typingTTL: DefaultTypingTTL,
		now:       time.Now,
		logger:    slog.Default(),
		unread:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply folds a server event into the state. Events the mirror does not
// track are ignored.
func (s *State) Apply(ctx context.Context, env realtime.Envelope) error {
	switch env.Type {
	case realtime.EventPresenceUpdate:
		var p realtime.PresencePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.applyPresence(p)
	case realtime.EventMessageNew:
		var msg messages.Message
		if err := env.Decode(&msg); err != nil {
			return err
		}
		s.applyIncoming(ctx, msg)
	case realtime.EventTypingStart, realtime.EventTypingStop:
		var p realtime.TypingPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.applyTyping(env.Type == realtime.EventTypingStart, p.SenderID)
	case realtime.EventMessageSent:
		var msg messages.Message
		if err := env.Decode(&msg); err != nil {
			return err
		}
		s.AppendSent(msg)
	}
	return nil
}

func (s *State) applyPresence(p realtime.PresencePayload) {
	s.mu.Lock()
	if p.Version <= s.presenceVersion {
		s.mu.Unlock()
		return
	}
	s.presenceVersion = p.Version
	s.online = slices.Clone(p.Online)
	s.mu.Unlock()
	s.changed()
}

func (s *State) applyIncoming(ctx context.Context, msg messages.Message) {
	s.mu.Lock()
	fromActive := s.active != "" && msg.SenderID == s.active
	if fromActive {
		if !s.contains(msg.ID) {
			s.conversation = append(s.conversation, msg)
		}
		s.typing = false
	} else {
		s.unread[msg.SenderID]++
	}
	s.mu.Unlock()

	if fromActive {
		s.markRead(ctx, msg.SenderID)
	}
	s.changed()
}

func (s *State) applyTyping(start bool, senderID string) {
	s.mu.Lock()
	if s.active == "" || senderID != s.active {
		s.mu.Unlock()
		return
	}
	s.typing = start
	if start {
		s.typingSince = s.now()
	}
	s.mu.Unlock()
	s.changed()
}

// Select opens the conversation with counterpart showing history.
func (s *State) Select(ctx context.Context, counterpart string, history []messages.Message) {
	s.Activate(ctx, counterpart)
	s.LoadHistory(counterpart, history)
}

// Activate switches to counterpart with an empty conversation. The local
// unread counter is zeroed before the server confirms; a failed mark-read is
// logged and not rolled back. Messages from counterpart that arrive from now
// on are appended to the conversation.
func (s *State) Activate(ctx context.Context, counterpart string) {
	counterpart = strings.TrimSpace(counterpart)
	s.mu.Lock()
	s.active = counterpart
	s.conversation = nil
	s.typing = false
	delete(s.unread, counterpart)
	s.mu.Unlock()

	if counterpart != "" {
		s.markRead(ctx, counterpart)
	}
	s.changed()
}

// LoadHistory merges fetched history into the open conversation, keeping
// messages that arrived live while it was loading. It is a no-op when the
// user has switched away from counterpart in the meantime.
func (s *State) LoadHistory(counterpart string, history []messages.Message) {
	counterpart = strings.TrimSpace(counterpart)
	s.mu.Lock()
	if counterpart == "" || s.active != counterpart {
		s.mu.Unlock()
		return
	}
	merged := slices.Clone(history)
	seen := make(map[string]struct{}, len(merged))
	for _, m := range merged {
		seen[m.ID] = struct{}{}
	}
	for _, m := range s.conversation {
		if _, ok := seen[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	slices.SortStableFunc(merged, func(a, b messages.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	s.conversation = merged
	s.mu.Unlock()
	s.changed()
}

// AppendSent adds a message the user sent to the open conversation.
func (s *State) AppendSent(msg messages.Message) {
	s.mu.Lock()
	if s.active == "" || msg.ReceiverID != s.active || s.contains(msg.ID) {
		s.mu.Unlock()
		return
	}
	s.conversation = append(s.conversation, msg)
	s.mu.Unlock()
	s.changed()
}

// Hydrate replaces the unread mirror with authoritative counts and forgets
// the presence version so the next snapshot after a reconnect is accepted.
func (s *State) Hydrate(counts map[string]int) {
	s.mu.Lock()
	s.unread = make(map[string]int, len(counts))
	for id, n := range counts {
		if n > 0 && id != s.active {
			s.unread[id] = n
		}
	}
	s.presenceVersion = 0
	s.mu.Unlock()
	s.changed()
}

func (s *State) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *State) Conversation() []messages.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversation)
}

func (s *State) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for id, n := range s.unread {
		out[id] = n
	}
	return out
}

func (s *State) UnreadFrom(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[id]
}

func (s *State) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.online)
}

func (s *State) IsOnline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.online, id)
}

// Typing reports the indicator for the open conversation. A start signal
// older than the typing TTL counts as idle.
func (s *State) Typing() TypingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.typing {
		return Idle
	}
	if s.now().Sub(s.typingSince) >= s.typingTTL {
		s.typing = false
		return Idle
	}
	return PeerTyping
}

// contains must be called with mu held.
func (s *State) contains(id string) bool {
	if id == "" {
		return false
	}
	return slices.ContainsFunc(s.conversation, func(m messages.Message) bool { return m.ID == id })
}

func (s *State) markRead(ctx context.Context, counterpart string) {
	if s.marker == nil {
		return
	}
	if _, err := s.marker.MarkRead(ctx, counterpart); err != nil {
		s.logger.Warn("mark read failed", "counterpart_id", counterpart, "error", err)
	}
}

func (s *State) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *State) Self() string { return s.self }
