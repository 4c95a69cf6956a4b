package middleware

import (
	"context"

	"chatrelay/internal/app/commands"
	"chatrelay/internal/app/queries"
	"chatrelay/internal/domain/auth"
)

// Authorizer decides whether the caller in ctx may run message.
type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// ActorAuthorizer requires a command or query that names an acting user to
// be issued by the authenticated user itself. Other messages pass through.
type ActorAuthorizer struct{}

func (ActorAuthorizer) Authorize(ctx context.Context, message any) error {
	// Queries share the Key method set, so one assertion covers both buses.
	cmd, ok := message.(commands.Command)
	if !ok {
		return nil
	}
	actor, scoped := commands.ActorOf(cmd)
	if !scoped {
		return nil
	}
	caller, ok := auth.UserFrom(ctx)
	if !ok {
		return auth.ErrUnauthenticated
	}
	if actor != caller {
		return auth.ErrForbidden
	}
	return nil
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
