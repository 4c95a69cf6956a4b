package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/realtime"
)

var ErrSessionReplaced = errors.New("client: session replaced by another connection")

// Conn is the live event connection to /ws.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	timeout time.Duration
}

// WebsocketURL derives the /ws endpoint from an http(s) base URL.
func WebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

func Dial(ctx context.Context, baseURL string, creds Credentials) (*Conn, error) {
	endpoint, err := WebsocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	creds.apply(header)
	socket, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", endpoint, err)
	}
	return &Conn{ws: socket, timeout: 10 * time.Second}, nil
}

func (c *Conn) SendTyping(start bool, receiverID string) error {
	typ := realtime.EventTypingStop
	if start {
		typ = realtime.EventTypingStart
	}
	return c.write(typ, "", realtime.TypingRequest{ReceiverID: receiverID})
}

// SendMessage issues message.send; the reply arrives as message.sent or
// error carrying ref.
func (c *Conn) SendMessage(ref string, req realtime.SendRequest) error {
	return c.write(realtime.EventMessageSend, ref, req)
}

func (c *Conn) MarkRead(ref, counterpartID string) error {
	return c.write(realtime.EventMarkRead, ref, realtime.MarkReadRequest{CounterpartID: counterpartID})
}

// Run delivers every received envelope to handle until the connection ends
// or ctx is cancelled. A session.replaced event ends it with ErrSessionReplaced.
func (c *Conn) Run(ctx context.Context, handle func(realtime.Envelope)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()
	for {
		var env realtime.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: read: %w", err)
		}
		handle(env)
		if env.Type == realtime.EventSessionReplaced {
			return ErrSessionReplaced
		}
	}
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) write(typ, ref string, data any) error {
	env, err := realtime.NewEnvelope(typ, ref, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.ws.WriteJSON(env)
}

var _ TypingSender = (*Conn)(nil)
