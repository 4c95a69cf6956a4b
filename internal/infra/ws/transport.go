package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/realtime"
)

type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 16 << 20
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Handler is the subset of the hub a live connection drives.
type Handler interface {
	Handle(ctx context.Context, cmd realtime.Command) error
}

// NewUpgrader accepts requests from the listed origins; "*" or an empty list
// accepts any origin.
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	anyOrigin := len(origins) == 0
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return anyOrigin || origin == "" || allowed[strings.TrimRight(origin, "/")]
		},
	}
}

// Serve registers the socket for userID with the hub and pumps frames until
// the peer goes away or ctx ends. It blocks for the life of the connection.
func Serve(ctx context.Context, hub Handler, userID string, socket *websocket.Conn, opts Options) {
	opts = opts.withDefaults()
	conn := newConn(socket, opts)
	log := opts.Logger.With("user_id", userID, "conn_id", conn.ID())

	go conn.writePump()
	if err := hub.Handle(ctx, realtime.Connect{UserID: userID, Conn: conn}); err != nil {
		log.WarnContext(ctx, "connect rejected", "error", err)
		conn.Close()
		<-conn.closed
		return
	}
	log.InfoContext(ctx, "connection opened")

	defer func() {
		_ = hub.Handle(context.WithoutCancel(ctx), realtime.Disconnect{UserID: userID, Conn: conn})
		conn.Close()
		<-conn.closed
		log.InfoContext(ctx, "connection closed")
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	readTimeout := opts.PingInterval * 2
	socket.SetReadLimit(opts.ReadLimit)
	_ = socket.SetReadDeadline(time.Now().Add(readTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var env realtime.Envelope
		if err := socket.ReadJSON(&env); err != nil {
			if isDecodeErr(err) {
				reject(conn, "", err)
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.DebugContext(ctx, "read loop ended", "error", err)
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(readTimeout))
		cmd, err := realtime.DecodeClientEnvelope(userID, conn, env)
		if err != nil {
			reject(conn, env.Ref, err)
			continue
		}
		if err := hub.Handle(ctx, cmd); err != nil {
			reject(conn, env.Ref, err)
		}
	}
}

func reject(conn *Conn, ref string, err error) {
	env, encErr := realtime.NewEnvelope(realtime.EventError, ref, realtime.ErrorPayload{
		Code:    realtime.CodeBadRequest,
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	_ = conn.Send(env)
}

// isDecodeErr reports a malformed frame; the socket itself is still usable.
func isDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
