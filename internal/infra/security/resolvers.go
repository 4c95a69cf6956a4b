package security

import (
	"context"
	"crypto/subtle"
	"strings"

	"chatrelay/internal/domain/auth"
)

// HeaderResolver trusts the credential as the user id. Use it only behind a
// gateway that authenticates callers and sets the identity header.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(_ context.Context, credential string) (string, error) {
	id := strings.TrimSpace(credential)
	if id == "" {
		return "", auth.ErrCredentialRequired
	}
	return id, nil
}

// StaticResolver maps fixed bearer tokens to users.
type StaticResolver struct {
	tokens map[string]string
}

func NewStaticResolver(tokens map[string]string) StaticResolver {
	copied := make(map[string]string, len(tokens))
	for token, user := range tokens {
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if token != "" && user != "" {
			copied[token] = user
		}
	}
	return StaticResolver{tokens: copied}
}

func (r StaticResolver) Resolve(_ context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", auth.ErrCredentialRequired
	}
	for token, user := range r.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(credential)) == 1 {
			return user, nil
		}
	}
	return "", auth.ErrSessionNotFound
}

var (
	_ auth.Resolver = HeaderResolver{}
	_ auth.Resolver = StaticResolver{}
)
