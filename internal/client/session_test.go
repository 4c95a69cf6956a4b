package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/handlers/messaging"
	"chatrelay/internal/app/middleware"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/app/realtime"
	"chatrelay/internal/infra/config"
	ginserver "chatrelay/internal/infra/http/gin"
	"chatrelay/internal/infra/obs"
	"chatrelay/internal/infra/security"
	"chatrelay/internal/infra/storage/memory"
	"chatrelay/internal/infra/ws"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := realtime.NewHub(realtime.NewRegistry(), nil, nil)
	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	messaging.Register(cmdBus, queryBus, messaging.Dependencies{Messages: memory.NewMessageRepository(), Pusher: hub})
	cmds := middleware.ChainCommands(cmdBus,
		middleware.Authorization(middleware.ActorAuthorizer{}),
		middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), middleware.JSONResultCodec{}, nil),
	)
	qs := middleware.ChainQueries(queryBus, middleware.QueryAuthorization(middleware.ActorAuthorizer{}))
	hub.SetCommandBus(cmds)

	router := ginserver.NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Messages:       ginserver.MessageHandler{Commands: cmds, Queries: qs},
		Presence:       ginserver.PresenceHandler{Source: hub},
		Socket:         ginserver.SocketHandler{Hub: hub, Upgrader: ws.NewUpgrader(nil)},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: security.HeaderResolver{}, TrustHeader: true}.Handle,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func as(user string) Credentials { return Credentials{Token: user, TrustHeader: true} }

func TestAPIRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, bob := NewAPI(srv.URL, as("alice")), NewAPI(srv.URL, as("bob"))

	msg, err := alice.Send(ctx, "bob", SendInput{Text: "hello"}, "k-1")
	require.NoError(t, err)
	again, err := alice.Send(ctx, "bob", SendInput{Text: "hello"}, "k-1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, again.ID)

	counts, err := bob.Unread(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1}, counts)

	history, err := bob.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)

	updated, err := bob.MarkRead(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	presence, err := bob.Presence(ctx)
	require.NoError(t, err)
	assert.Empty(t, presence.Online)
}

func TestAPIErrors(t *testing.T) {
	srv := newServer(t)
	_, err := NewAPI(srv.URL, as("alice")).Send(context.Background(), "alice", SendInput{Text: "me"}, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)

	_, err = NewAPI(srv.URL, Credentials{}).Unread(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func openSession(t *testing.T, ctx context.Context, srv *httptest.Server, user string) *Session {
	t.Helper()
	conn, err := Dial(ctx, srv.URL, as(user))
	require.NoError(t, err)
	s := NewSession(user, NewAPI(srv.URL, as(user)), conn, nil)
	require.NoError(t, s.Sync(ctx))
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() { _ = conn.Close() })
	return s
}

func TestSessionsExchangeMessagesAndTyping(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := openSession(t, ctx, srv, "alice")
	bob := openSession(t, ctx, srv, "bob")
	require.Eventually(t, func() bool { return alice.State.IsOnline("bob") }, 3*time.Second, 10*time.Millisecond)

	_, err := alice.Send(ctx, SendInput{Text: "nobody open"})
	assert.ErrorIs(t, err, ErrNoConversation)

	require.NoError(t, alice.Open(ctx, "bob"))
	_, err = alice.Send(ctx, SendInput{Text: "first"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bob.State.UnreadFrom("alice") == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Open(ctx, "alice"))
	assert.Zero(t, bob.State.UnreadFrom("alice"))
	assert.Len(t, bob.State.Conversation(), 1)

	alice.Input()
	require.Eventually(t, func() bool { return bob.State.Typing() == PeerTyping }, 3*time.Second, 10*time.Millisecond)

	_, err = alice.Send(ctx, SendInput{Text: "second"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(bob.State.Conversation()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, Idle, bob.State.Typing())
	assert.Len(t, alice.State.Conversation(), 2)

	assert.Eventually(t, func() bool {
		counts, err := bob.API.Unread(ctx)
		return err == nil && len(counts) == 0
	}, 3*time.Second, 20*time.Millisecond, "active conversation is marked read on the server")
}

func TestTypingBurstEndsWhenWindowExpires(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceConn, err := Dial(ctx, srv.URL, as("alice"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = aliceConn.Close() })
	alice := NewSession("alice", NewAPI(srv.URL, as("alice")), aliceConn, nil)
	alice.Typing = NewDebouncer(aliceConn, WithWindow(150*time.Millisecond))
	go func() { _ = alice.Run(ctx) }()

	bobConn, err := Dial(ctx, srv.URL, as("bob"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bobConn.Close() })
	bob := NewState("bob", nil)
	bob.Select(ctx, "alice", nil)

	var (
		mu     sync.Mutex
		starts int
		stops  int
		seen   []TypingState
	)
	go func() {
		_ = bobConn.Run(ctx, func(env realtime.Envelope) {
			_ = bob.Apply(ctx, env)
			mu.Lock()
			defer mu.Unlock()
			switch env.Type {
			case realtime.EventTypingStart:
				starts++
				seen = append(seen, bob.Typing())
			case realtime.EventTypingStop:
				stops++
				seen = append(seen, bob.Typing())
			}
		})
	}()

	require.Eventually(t, func() bool { return alice.State.IsOnline("bob") }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, alice.Open(ctx, "bob"))
	for range 5 {
		alice.Input()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stops > 0
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, []TypingState{PeerTyping, Idle}, seen)
	assert.Equal(t, Idle, bob.Typing())
}

func TestSessionReplacedEndsRun(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	first, err := Dial(ctx, srv.URL, as("alice"))
	require.NoError(t, err)
	defer first.Close()
	done := make(chan error, 1)
	go func() { done <- first.Run(ctx, func(realtime.Envelope) {}) }()

	second, err := Dial(ctx, srv.URL, as("alice"))
	require.NoError(t, err)
	defer second.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionReplaced)
	case <-time.After(3 * time.Second):
		t.Fatal("first connection was not replaced")
	}
}

func TestWebsocketURL(t *testing.T) {
	u, err := WebsocketURL("https://chat.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", u)
	u, err = WebsocketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", u)
}
