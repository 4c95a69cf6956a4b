package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"chatrelay/internal/client"
	"chatrelay/internal/domain/messages"
)

const help = `/open <user>   switch conversation
/image <path>  send an image file
/who           users online
/unread        unread counts
/quit          leave`

func interactive(ctx context.Context, s *client.Session, peer string, changes <-chan struct{}) error {
	v := &view{session: s}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          v.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), ".chatrelay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		Listener: readline.FuncListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
			if len(line) > 0 && line[0] != '/' && key != readline.CharEnter {
				s.Input()
			}
			return nil, 0, false
		}),
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	v.attach(rl.Stdout(), func(p string) {
		rl.SetPrompt(p)
		rl.Refresh()
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	go v.follow(ctx, changes, time.Second)

	if peer != "" {
		if err := v.open(ctx, peer); err != nil {
			return err
		}
	}
	fmt.Fprintln(rl.Stdout(), help)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := rl.Readline()
			if err != nil {
				readErr <- err
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			if errors.Is(err, client.ErrSessionReplaced) {
				fmt.Fprintln(rl.Stdout(), "signed in elsewhere, closing")
				return nil
			}
			return err
		case err := <-readErr:
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lines:
			quit, err := v.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintln(rl.Stdout(), "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// view renders session state changes to the terminal.
type view struct {
	session *client.Session

	mu        sync.Mutex
	out       io.Writer
	setPrompt func(string)
	shown     int
	active    string
}

func (v *view) attach(out io.Writer, setPrompt func(string)) {
	v.mu.Lock()
	v.out = out
	v.setPrompt = setPrompt
	v.mu.Unlock()
}

func (v *view) handle(ctx context.Context, line string) (bool, error) {
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		return true, nil
	case line == "/who":
		v.printf("online: %s\n", strings.Join(v.session.State.Online(), ", "))
	case line == "/unread":
		v.printf("%s\n", formatUnread(v.session.State.Unread()))
	case strings.HasPrefix(line, "/open "):
		return false, v.open(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
	case strings.HasPrefix(line, "/image "):
		image, err := dataURL(strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
		if err != nil {
			return false, err
		}
		_, err = v.session.Send(ctx, client.SendInput{Image: image})
		v.refresh()
		return false, err
	case strings.HasPrefix(line, "/"):
		v.printf("%s\n", help)
	default:
		_, err := v.session.Send(ctx, client.SendInput{Text: line})
		v.refresh()
		return false, err
	}
	return false, nil
}

func (v *view) open(ctx context.Context, peer string) error {
	if err := v.session.Open(ctx, peer); err != nil {
		return err
	}
	v.mu.Lock()
	v.active = ""
	v.shown = 0
	v.mu.Unlock()
	v.refresh()
	return nil
}

// follow redraws on every state change and periodically so an expired
// typing indicator disappears.
func (v *view) follow(ctx context.Context, changes <-chan struct{}, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			v.refresh()
		case <-t.C:
			v.refresh()
		}
	}
}

// refresh prints messages not yet shown and updates the prompt.
func (v *view) refresh() {
	state := v.session.State
	active := state.Active()
	conv := state.Conversation()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.out == nil {
		return
	}
	if active != v.active {
		v.active = active
		v.shown = 0
		if active != "" {
			fmt.Fprintf(v.out, "--- %s ---\n", active)
		}
	}
	for _, m := range conv[min(v.shown, len(conv)):] {
		fmt.Fprintln(v.out, formatMessage(m, state.Self()))
	}
	v.shown = len(conv)
	if v.setPrompt != nil {
		v.setPrompt(v.prompt())
	}
}

func (v *view) prompt() string {
	state := v.session.State
	active := state.Active()
	if active == "" {
		return "(no chat) > "
	}
	var flags []string
	if state.IsOnline(active) {
		flags = append(flags, "online")
	}
	if state.Typing() == client.PeerTyping {
		flags = append(flags, "typing...")
	}
	total := 0
	for _, n := range state.Unread() {
		total += n
	}
	if total > 0 {
		flags = append(flags, fmt.Sprintf("%d unread", total))
	}
	if len(flags) == 0 {
		return active + " > "
	}
	return fmt.Sprintf("%s [%s] > ", active, strings.Join(flags, ", "))
}

func (v *view) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.out != nil {
		fmt.Fprintf(v.out, format, args...)
	}
}

func formatMessage(m messages.Message, self string) string {
	who := m.SenderID
	if self != "" && who == self {
		who = "you"
	}
	body := m.Text
	if m.ImageRef != "" {
		body = strings.TrimSpace(body + " [image " + m.ImageRef + "]")
	}
	return fmt.Sprintf("%s %s: %s", m.CreatedAt.Local().Format("15:04"), who, body)
}

func formatUnread(counts map[string]int) string {
	if len(counts) == 0 {
		return "no unread messages"
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %d", id, counts[id]))
	}
	return strings.Join(parts, ", ")
}

func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%s is not an image", path)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
