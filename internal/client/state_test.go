package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/realtime"
	"chatrelay/internal/domain/messages"
)

type markerStub struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *markerStub) MarkRead(_ context.Context, counterpart string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, counterpart)
	return 0, m.err
}

func (m *markerStub) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func envelope(t *testing.T, typ string, data any) realtime.Envelope {
	t.Helper()
	env, err := realtime.NewEnvelope(typ, "", data)
	require.NoError(t, err)
	return env
}

func incoming(id, from, to, text string) messages.Message {
	return messages.Message{ID: id, SenderID: from, ReceiverID: to, Text: text, CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func TestStateCountsMessagesFromInactiveSenders(t *testing.T) {
	marker := &markerStub{}
	s := NewState("alice", marker)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("1", "bob", "alice", "hi"))))
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("2", "bob", "alice", "there"))))
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("3", "carol", "alice", "yo"))))

	assert.Equal(t, map[string]int{"bob": 2, "carol": 1}, s.Unread())
	assert.Empty(t, s.Conversation())
	assert.Empty(t, marker.called())
}

func TestStateSelectZeroesCounterAndMarksRead(t *testing.T) {
	marker := &markerStub{err: errors.New("offline")}
	s := NewState("alice", marker)
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("1", "bob", "alice", "hi"))))

	history := []messages.Message{incoming("1", "bob", "alice", "hi")}
	s.Select(ctx, "bob", history)

	assert.Zero(t, s.UnreadFrom("bob"), "zeroed even though the server call failed")
	assert.Equal(t, []string{"bob"}, marker.called())
	assert.Equal(t, "bob", s.Active())
	assert.Equal(t, history, s.Conversation())
}

func TestStateKeepsMessagesArrivingWhileHistoryLoads(t *testing.T) {
	marker := &markerStub{}
	s := NewState("alice", marker)
	ctx := context.Background()
	older := incoming("1", "bob", "alice", "earlier")
	live := incoming("2", "bob", "alice", "during fetch")
	live.CreatedAt = older.CreatedAt.Add(time.Second)

	s.Activate(ctx, "bob")
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, live)))
	s.LoadHistory("bob", []messages.Message{older})

	conv := s.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "1", conv[0].ID)
	assert.Equal(t, "2", conv[1].ID)
	assert.Zero(t, s.UnreadFrom("bob"))

	s.LoadHistory("bob", []messages.Message{older, live})
	assert.Len(t, s.Conversation(), 2, "history overlapping live messages is not duplicated")
}

func TestStateLoadHistoryIgnoredAfterSwitchingAway(t *testing.T) {
	s := NewState("alice", nil)
	ctx := context.Background()

	s.Activate(ctx, "bob")
	s.Activate(ctx, "carol")
	s.LoadHistory("bob", []messages.Message{incoming("1", "bob", "alice", "late")})

	assert.Equal(t, "carol", s.Active())
	assert.Empty(t, s.Conversation())
}

func TestStateMessageFromActivePeerIsAppendedAndRead(t *testing.T) {
	marker := &markerStub{}
	now := &clock{t: time.Unix(100, 0)}
	s := NewState("alice", marker, WithClock(now.now))
	ctx := context.Background()
	s.Select(ctx, "bob", nil)

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "bob"})))
	assert.Equal(t, PeerTyping, s.Typing())

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("1", "bob", "alice", "hi"))))
	assert.Equal(t, Idle, s.Typing(), "peer message clears typing")
	assert.Len(t, s.Conversation(), 1)
	assert.Zero(t, s.UnreadFrom("bob"))
	assert.Equal(t, []string{"bob", "bob"}, marker.called())
}

func TestStateTypingIgnoresOtherSenders(t *testing.T) {
	now := &clock{t: time.Unix(100, 0)}
	s := NewState("alice", nil, WithClock(now.now))
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "bob"})))
	assert.Equal(t, Idle, s.Typing(), "no conversation open")

	s.Select(ctx, "bob", nil)
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "carol"})))
	assert.Equal(t, Idle, s.Typing())

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "bob"})))
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStop, realtime.TypingPayload{SenderID: "carol"})))
	assert.Equal(t, PeerTyping, s.Typing(), "stop from another sender is ignored")

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStop, realtime.TypingPayload{SenderID: "bob"})))
	assert.Equal(t, Idle, s.Typing())
}

func TestStateTypingExpiresAndResetsOnSwitch(t *testing.T) {
	now := &clock{t: time.Unix(100, 0)}
	s := NewState("alice", nil, WithClock(now.now), WithTypingTTL(2*time.Second))
	ctx := context.Background()
	s.Select(ctx, "bob", nil)

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "bob"})))
	now.t = now.t.Add(time.Second)
	assert.Equal(t, PeerTyping, s.Typing())
	now.t = now.t.Add(time.Second)
	assert.Equal(t, Idle, s.Typing())

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventTypingStart, realtime.TypingPayload{SenderID: "bob"})))
	s.Select(ctx, "carol", nil)
	assert.Equal(t, Idle, s.Typing())
}

func TestStatePresenceDiscardsStaleSnapshots(t *testing.T) {
	s := NewState("alice", nil)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventPresenceUpdate, realtime.PresencePayload{Online: []string{"alice", "bob"}, Version: 4})))
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventPresenceUpdate, realtime.PresencePayload{Online: []string{"alice"}, Version: 3})))
	assert.Equal(t, []string{"alice", "bob"}, s.Online())
	assert.True(t, s.IsOnline("bob"))

	s.Hydrate(nil)
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventPresenceUpdate, realtime.PresencePayload{Online: []string{"alice"}, Version: 1})))
	assert.Equal(t, []string{"alice"}, s.Online(), "accepted after a reconnect")
}

func TestStateHydrateReplacesCounters(t *testing.T) {
	s := NewState("alice", nil)
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageNew, incoming("1", "bob", "alice", "hi"))))
	s.Select(ctx, "dave", nil)

	s.Hydrate(map[string]int{"carol": 2, "zero": 0, "dave": 1})
	assert.Equal(t, map[string]int{"carol": 2}, s.Unread())
}

func TestStateAppendSentOnlyForOpenConversation(t *testing.T) {
	changes := 0
	s := NewState("alice", nil, WithOnChange(func() { changes++ }))
	ctx := context.Background()
	s.Select(ctx, "bob", nil)
	changes = 0

	sent := incoming("9", "alice", "bob", "hello")
	s.AppendSent(sent)
	require.NoError(t, s.Apply(ctx, envelope(t, realtime.EventMessageSent, sent)))
	s.AppendSent(incoming("10", "alice", "carol", "elsewhere"))

	assert.Equal(t, []messages.Message{sent}, s.Conversation(), "duplicates and other conversations are skipped")
	assert.Equal(t, 1, changes)
}

func TestStateRejectsMalformedEvents(t *testing.T) {
	s := NewState("alice", nil)
	err := s.Apply(context.Background(), realtime.Envelope{Type: realtime.EventMessageNew, Data: []byte(`"nope"`)})
	assert.Error(t, err)
	assert.NoError(t, s.Apply(context.Background(), realtime.Envelope{Type: realtime.EventSessionReplaced}))
}
