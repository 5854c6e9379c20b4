// Package handler exposes the login flow over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/csrf"
	"siteguard/backend/internal/identity/service"
	"siteguard/backend/internal/idp"
	"siteguard/backend/internal/server/httpapi"
	"siteguard/backend/internal/server/middleware"
	"siteguard/backend/internal/user/domain"
)

// LoginService is the minimal service surface needed by the auth handlers.
type LoginService interface {
	InitiateLogin(ctx context.Context) (*service.LoginStart, error)
	CompleteLogin(ctx context.Context, state, code string) (*service.LoginResult, error)
	Logout(ctx context.Context, userID string)
}

// HTTP serves /auth/login, /auth/callback, and /auth/logout.
type HTTP struct {
	svc LoginService
}

// NewHTTP returns the auth HTTP handler.
func NewHTTP(svc LoginService) *HTTP {
	return &HTTP{svc: svc}
}

// Login starts a provider login: issues a fresh state and returns the
// authorization URL the client should redirect to.
func (h *HTTP) Login(c *gin.Context) {
	start, err := h.svc.InitiateLogin(c.Request.Context())
	if err != nil {
		if !httpapi.StorageError(c, err) {
			httpapi.Internal(c)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": start.AuthorizationURL,
		"state":             start.State,
	})
}

// Callback completes a provider login. Every authentication failure is a 401
// with the same top-level message and a distinct code; the caller must start
// over from Login since the state is consumed either way.
func (h *HTTP) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")

	res, err := h.svc.CompleteLogin(c.Request.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, csrf.ErrCSRFMismatch):
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeCSRFMismatch, "authentication failed")
		case errors.Is(err, idp.ErrCodeExchangeFailed):
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeCodeExchangeFailed, "authentication failed")
		case errors.Is(err, idp.ErrProfileFetchFailed):
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeProfileFetchFailed, "authentication failed")
		case httpapi.StorageError(c, err):
		default:
			httpapi.Internal(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_credential": res.Credential,
		"token_type":         "Bearer",
		"expires_in":         int(time.Until(res.ExpiresAt).Seconds()),
		"user":               UserJSON(res.User),
	})
}

// Logout ends the session best-effort. Credentials are stateless, so this
// only records the event; it succeeds with or without a valid credential.
func (h *HTTP) Logout(c *gin.Context) {
	userID := ""
	if u, ok := middleware.GetUser(c.Request.Context()); ok {
		userID = u.ID
	}
	h.svc.Logout(c.Request.Context(), userID)
	c.Status(http.StatusNoContent)
}

// UserJSON renders a directory entry for API responses.
func UserJSON(u *domain.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"external_id":  u.ExternalID,
		"email":        u.Email,
		"name":         u.Name,
		"role":         string(u.Role),
		"organization": u.Organization,
		"created_at":   u.CreatedAt.UTC().Format(time.RFC3339),
		"last_login":   u.LastLogin.UTC().Format(time.RFC3339),
	}
}
