// Package auth carries the caller identity resolved by the authentication
// collaborator. Issuing credentials happens elsewhere.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCredentialRequired = errors.New("auth: credential is required")
	ErrSessionNotFound    = errors.New("auth: session not found")
	ErrSessionExpired     = errors.New("auth: session expired")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrForbidden          = errors.New("auth: caller may not act for another user")
)

// Resolver maps a presented credential to a user identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, credential string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, credential string) (string, error) {
	return f(ctx, credential)
}

// Session is a credential issued by the auth service.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Active reports whether the session is usable at now. A zero expiry never expires.
func (s Session) Active(now time.Time) bool {
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type principalKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey{}, strings.TrimSpace(userID))
}

// UserFrom returns the authenticated user stored in ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok && id != ""
}
