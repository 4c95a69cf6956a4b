package middleware

import (
	"context"
	"log/slog"
	"time"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/queries"
)

func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		return nil
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			actor, _ := commands.ActorOf(cmd)
			logResult(ctx, logger, "command", cmd.Key(), actor, start, err)
			return res, err
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		return nil
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := next.Ask(ctx, q)
			actor, _ := queries.ActorOf(q)
			logResult(ctx, logger, "query", q.Key(), actor, start, err)
			return res, err
		})
	}
}

func logResult(ctx context.Context, logger *slog.Logger, kind, key, actor string, start time.Time, err error) {
	attrs := []any{kind, key, "duration", time.Since(start)}
	if actor != "" {
		attrs = append(attrs, "actor_id", actor)
	}
	if err != nil {
		logger.WarnContext(ctx, kind+" failed", append(attrs, "error", err)...)
		return
	}
	logger.DebugContext(ctx, kind+" handled", attrs...)
}
