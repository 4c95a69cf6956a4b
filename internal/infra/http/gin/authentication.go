package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/domain/auth"
)

// UserIDHeader carries the caller identity when a trusted gateway authenticates.
const UserIDHeader = "X-User-ID"

const userContextKey = "chatrelay.user"

// AuthMiddleware resolves the caller and stores the user id on the request
// context. With TrustHeader the credential is the X-User-ID header or the
// userId query parameter; otherwise it is the bearer token, or the token
// query parameter for browser websocket handshakes.
type AuthMiddleware struct {
	Resolver    auth.Resolver
	TrustHeader bool
	Logger      *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	credential := m.credential(c)
	if credential == "" || m.Resolver == nil {
		c.Next()
		return
	}
	userID, err := m.Resolver.Resolve(c.Request.Context(), credential)
	if err != nil {
		if !errors.Is(err, auth.ErrSessionNotFound) && m.Logger != nil {
			m.Logger.Debug("credential validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(userContextKey, userID)
	c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), userID))
	c.Next()
}

func (m AuthMiddleware) credential(c *gin.Context) string {
	if m.TrustHeader {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			return id
		}
		return strings.TrimSpace(c.Query("userId"))
	}
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}

func requireUser(c *gin.Context) (string, bool) {
	id, ok := auth.UserFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return "", false
	}
	return id, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
