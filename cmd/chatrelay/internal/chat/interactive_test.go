package chat

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/realtime"
	"chatrelay/internal/client"
	"chatrelay/internal/domain/messages"
)

func TestViewRendersNewMessagesOnce(t *testing.T) {
	state := client.NewState("alice", nil)
	v := &view{session: &client.Session{State: state}}
	var out bytes.Buffer
	var prompt string
	v.attach(&out, func(p string) { prompt = p })

	ctx := context.Background()
	state.Select(ctx, "bob", []messages.Message{
		{ID: "1", SenderID: "bob", ReceiverID: "alice", Text: "hey", CreatedAt: time.Now()},
	})
	v.refresh()
	v.refresh()
	assert.Equal(t, 1, strings.Count(out.String(), "bob: hey"))
	assert.Contains(t, out.String(), "--- bob ---")
	assert.Equal(t, "bob > ", prompt)

	env, err := realtime.NewEnvelope(realtime.EventTypingStart, "", realtime.TypingPayload{SenderID: "bob"})
	require.NoError(t, err)
	require.NoError(t, state.Apply(ctx, env))
	env, err = realtime.NewEnvelope(realtime.EventPresenceUpdate, "", realtime.PresencePayload{Online: []string{"alice", "bob"}, Version: 2})
	require.NoError(t, err)
	require.NoError(t, state.Apply(ctx, env))
	v.refresh()
	assert.Equal(t, "bob [online, typing...] > ", prompt)

	state.AppendSent(messages.Message{ID: "2", SenderID: "alice", ReceiverID: "bob", Text: "hi", CreatedAt: time.Now()})
	v.refresh()
	assert.Contains(t, out.String(), "you: hi")
}

func TestViewCommands(t *testing.T) {
	state := client.NewState("alice", nil)
	v := &view{session: &client.Session{State: state}}
	var out bytes.Buffer
	v.attach(&out, nil)
	ctx := context.Background()

	quit, err := v.handle(ctx, "/unread")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "no unread messages")

	_, err = v.handle(ctx, "/nope")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "/open <user>")

	quit, err = v.handle(ctx, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestFormatUnreadIsSorted(t *testing.T) {
	assert.Equal(t, "bob: 2, carol: 1", formatUnread(map[string]int{"carol": 1, "bob": 2}))
}

func TestFormatMessageWithImage(t *testing.T) {
	m := messages.Message{SenderID: "bob", ImageRef: "http://img/1.png", CreatedAt: time.Now()}
	assert.True(t, strings.HasSuffix(formatMessage(m, "alice"), "bob: [image http://img/1.png]"))
}

func TestDataURL(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(png, []byte{0x89, 'P', 'N', 'G'}, 0o600))
	url, err := dataURL(png)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw==", url)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	_, err = dataURL(txt)
	assert.Error(t, err)
}
