package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/security"
	"siteguard/backend/internal/server/httpapi"
	"siteguard/backend/internal/user/domain"
)

const bearerPrefix = "bearer "

// UserLoader resolves the current directory entry for a credential subject.
type UserLoader interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
}

// ClientIP stashes the client IP into the request context so audit records
// written deep in the service layer can carry it.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth validates the Bearer session credential and loads the caller's
// directory entry into the request context. An expired credential fails with
// a distinct code so clients can re-authenticate instead of treating the
// failure as fatal. The role is always read from the directory, not from the
// credential, so a role change takes effect on the next request.
func RequireAuth(tokens *security.TokenProvider, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authenticate(c, tokens, users, true)
		if !ok {
			return
		}
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		c.Next()
	}
}

// OptionalAuth loads the caller's directory entry when a valid credential is
// present and continues anonymously otherwise. It never rejects the request.
func OptionalAuth(tokens *security.TokenProvider, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := authenticate(c, tokens, users, false); ok && u != nil {
			c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		}
		c.Next()
	}
}

// authenticate resolves the request's credential to a user. With reject set
// it writes the error response and aborts; otherwise failures yield (nil,
// true) so the caller proceeds anonymously. Storage failures abort either
// way: they are server trouble, not an anonymous caller.
func authenticate(c *gin.Context, tokens *security.TokenProvider, users UserLoader, reject bool) (*domain.User, bool) {
	token := extractBearer(c.GetHeader("Authorization"))
	if token == "" {
		if reject {
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeMissingCredential, "authentication required")
			return nil, false
		}
		return nil, true
	}

	claims, err := tokens.Validate(token)
	if err != nil {
		if reject {
			code := httpapi.CodeInvalidToken
			if errors.Is(err, security.ErrTokenExpired) {
				code = httpapi.CodeTokenExpired
			}
			httpapi.Error(c, http.StatusUnauthorized, code, "invalid or expired credential")
			return nil, false
		}
		return nil, true
	}

	u, err := users.GetByExternalID(c.Request.Context(), claims.Subject)
	if err != nil {
		if !httpapi.StorageError(c, err) {
			httpapi.Internal(c)
		}
		return nil, false
	}
	if u == nil {
		if reject {
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeUnknownUser, "invalid or expired credential")
			return nil, false
		}
		return nil, true
	}
	return u, true
}

// extractBearer returns the Bearer token from an Authorization header value,
// or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
