package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/handlers/messaging"
	"chatrelay/internal/app/middleware"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/domain/auth"
	"chatrelay/internal/domain/messages"
	"chatrelay/internal/infra/storage/memory"
)

type hubFixture struct {
	hub  *Hub
	repo messages.Repository
}

func newHubFixture(t *testing.T, repo messages.Repository) hubFixture {
	t.Helper()
	hub := NewHub(NewRegistry(), nil, nil)
	cmdBus := commands.NewInMemoryBus()
	messaging.Register(cmdBus, queries.NewInMemoryBus(), messaging.Dependencies{Messages: repo, Pusher: hub})
	hub.SetCommandBus(middleware.ChainCommands(cmdBus, middleware.Authorization(middleware.ActorAuthorizer{})))
	return hubFixture{hub: hub, repo: repo}
}

func userCtx(id string) context.Context {
	return auth.WithUser(context.Background(), id)
}

func lastPresence(t *testing.T, c *fakeConn) PresencePayload {
	t.Helper()
	updates := c.ofType(EventPresenceUpdate)
	require.NotEmpty(t, updates)
	var p PresencePayload
	require.NoError(t, updates[len(updates)-1].Decode(&p))
	return p
}

func TestHubPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")

	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	assert.Equal(t, []string{"alice"}, lastPresence(t, alice).Online)

	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))
	assert.Equal(t, []string{"alice", "bob"}, lastPresence(t, alice).Online)
	assert.Equal(t, []string{"alice", "bob"}, lastPresence(t, bob).Online)

	require.NoError(t, f.hub.Handle(userCtx("bob"), Disconnect{UserID: "bob", Conn: bob}))
	snap := lastPresence(t, alice)
	assert.Equal(t, []string{"alice"}, snap.Online)
	assert.EqualValues(t, 3, snap.Version)
}

func TestHubSupersededConnectionIsReplaced(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	old, fresh, bob := newFakeConn("a1"), newFakeConn("a2"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: old}))
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: fresh}))

	assert.Len(t, old.ofType(EventSessionReplaced), 1)
	assert.True(t, old.isClosed())

	presenceBefore := len(bob.ofType(EventPresenceUpdate))
	require.NoError(t, f.hub.Handle(userCtx("alice"), Disconnect{UserID: "alice", Conn: old}))
	assert.Len(t, bob.ofType(EventPresenceUpdate), presenceBefore, "stale disconnect must not broadcast")
	assert.Contains(t, f.hub.Presence().Online, "alice")
}

func TestHubSendDeliversToReceiver(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))

	err := f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Ref: "r1", Request: SendRequest{ReceiverID: "bob", Text: "hi"}})
	require.NoError(t, err)

	delivered := bob.ofType(EventMessageNew)
	require.Len(t, delivered, 1)
	var msg messages.Message
	require.NoError(t, delivered[0].Decode(&msg))
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "alice", msg.SenderID)

	acks := alice.ofType(EventMessageSent)
	require.Len(t, acks, 1)
	assert.Equal(t, "r1", acks[0].Ref)

	stored, err := f.repo.FindConversation(context.Background(), messages.PairFilter{A: "alice", B: "bob"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, stored[0].ID, msg.ID)
}

func TestHubSendToOfflineReceiverPersists(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice := newFakeConn("a1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))

	require.NoError(t, f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Request: SendRequest{ReceiverID: "bob", Text: "later"}}))
	assert.Len(t, alice.ofType(EventMessageSent), 1)
	assert.Empty(t, alice.ofType(EventError))

	counts, err := f.repo.UnreadCounts(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["alice"])
}

func TestHubSendWithFullReceiverBufferStillSucceeds(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))
	bob.full = true

	require.NoError(t, f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Request: SendRequest{ReceiverID: "bob", Text: "hi"}}))
	assert.Len(t, alice.ofType(EventMessageSent), 1)
}

func TestHubSendValidationError(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))

	require.NoError(t, f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Ref: "r2", Request: SendRequest{ReceiverID: "bob", Text: "   "}}))

	errs := alice.ofType(EventError)
	require.Len(t, errs, 1)
	var payload ErrorPayload
	require.NoError(t, errs[0].Decode(&payload))
	assert.Equal(t, CodeInvalidPayload, payload.Code)
	assert.Equal(t, "r2", errs[0].Ref)
	assert.Empty(t, bob.ofType(EventMessageNew))

	conv, err := f.repo.FindConversation(context.Background(), messages.PairFilter{A: "alice", B: "bob"})
	require.NoError(t, err)
	assert.Empty(t, conv)
}

func TestHubSendStorageFailureSkipsPush(t *testing.T) {
	f := newHubFixture(t, failingRepo{})
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))

	require.NoError(t, f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Request: SendRequest{ReceiverID: "bob", Text: "hi"}}))

	errs := alice.ofType(EventError)
	require.Len(t, errs, 1)
	var payload ErrorPayload
	require.NoError(t, errs[0].Decode(&payload))
	assert.Equal(t, CodeStorage, payload.Code)
	assert.Empty(t, bob.ofType(EventMessageNew))
}

func TestHubSendAsAnotherUserIsRejected(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice := newFakeConn("a1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))

	require.NoError(t, f.hub.Handle(userCtx("mallory"), Send{UserID: "alice", Conn: alice, Request: SendRequest{ReceiverID: "bob", Text: "hi"}}))
	errs := alice.ofType(EventError)
	require.Len(t, errs, 1)
	var payload ErrorPayload
	require.NoError(t, errs[0].Decode(&payload))
	assert.Equal(t, CodeBadRequest, payload.Code)
}

func TestHubTypingRelay(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))

	require.NoError(t, f.hub.Handle(context.Background(), TypingStart{UserID: "alice", ReceiverID: "bob"}))
	require.NoError(t, f.hub.Handle(context.Background(), TypingStop{UserID: "alice", ReceiverID: "bob"}))
	require.NoError(t, f.hub.Handle(context.Background(), TypingStart{UserID: "alice", ReceiverID: "carol"}))

	starts := bob.ofType(EventTypingStart)
	require.Len(t, starts, 1)
	var p TypingPayload
	require.NoError(t, starts[0].Decode(&p))
	assert.Equal(t, "alice", p.SenderID)
	assert.Len(t, bob.ofType(EventTypingStop), 1)
	assert.Empty(t, alice.ofType(EventTypingStart))

	conv, err := f.repo.FindConversation(context.Background(), messages.PairFilter{A: "alice", B: "bob"})
	require.NoError(t, err)
	assert.Empty(t, conv)
}

func TestHubMarkRead(t *testing.T) {
	f := newHubFixture(t, memory.NewMessageRepository())
	alice, bob := newFakeConn("a1"), newFakeConn("b1")
	require.NoError(t, f.hub.Handle(userCtx("alice"), Connect{UserID: "alice", Conn: alice}))
	require.NoError(t, f.hub.Handle(userCtx("bob"), Connect{UserID: "bob", Conn: bob}))
	for i := 0; i < 2; i++ {
		require.NoError(t, f.hub.Handle(userCtx("alice"), Send{UserID: "alice", Conn: alice, Request: SendRequest{ReceiverID: "bob", Text: "hi"}}))
	}

	require.NoError(t, f.hub.Handle(userCtx("bob"), MarkRead{UserID: "bob", Conn: bob, Ref: "m", CounterpartID: "alice"}))
	replies := bob.ofType(EventMessageRead)
	require.Len(t, replies, 1)
	var res MarkReadResult
	require.NoError(t, replies[0].Decode(&res))
	assert.Equal(t, MarkReadResult{CounterpartID: "alice", Updated: 2}, res)

	counts, err := f.repo.UnreadCounts(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestDecodeClientEnvelope(t *testing.T) {
	conn := newFakeConn("c")
	env, err := NewEnvelope(EventTypingStart, "", TypingRequest{ReceiverID: "bob"})
	require.NoError(t, err)
	cmd, err := DecodeClientEnvelope("alice", conn, env)
	require.NoError(t, err)
	assert.Equal(t, TypingStart{UserID: "alice", ReceiverID: "bob"}, cmd)

	env, err = NewEnvelope(EventMessageSend, "r9", SendRequest{ReceiverID: "bob", Text: "yo"})
	require.NoError(t, err)
	cmd, err = DecodeClientEnvelope("alice", conn, env)
	require.NoError(t, err)
	send, ok := cmd.(Send)
	require.True(t, ok)
	assert.Equal(t, "r9", send.Ref)
	assert.Equal(t, "yo", send.Request.Text)

	_, err = DecodeClientEnvelope("alice", conn, Envelope{Type: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeClientEnvelope("alice", conn, Envelope{Type: EventMarkRead})
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeStorage, ErrorCode(messages.WrapStorage("x", assert.AnError)))
	assert.Equal(t, CodeInvalidPayload, ErrorCode(messages.ErrSelfMessage))
	assert.Equal(t, CodeBadRequest, ErrorCode(auth.ErrForbidden))
}
