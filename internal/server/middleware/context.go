package middleware

import (
	"context"

	"siteguard/backend/internal/user/domain"
)

type contextKey struct{ name string }

var (
	userKey     = contextKey{"user"}
	clientIPKey = contextKey{"client_ip"}
)

// WithUser returns a context carrying the authenticated user.
// Handlers and access checks read it via GetUser.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// GetUser returns the authenticated user from context and true if set;
// otherwise nil, false.
func GetUser(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok && u != nil
}

// WithClientIP returns a context carrying the client IP for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the client IP from context, or "" if not set.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
