// Package handler exposes the user directory over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/audit"
	identityhandler "siteguard/backend/internal/identity/handler"
	"siteguard/backend/internal/platform/rbac"
	"siteguard/backend/internal/server/httpapi"
	"siteguard/backend/internal/server/middleware"
	"siteguard/backend/internal/user/domain"
	"siteguard/backend/internal/user/repository"
)

// Directory is the minimal directory surface needed by the user handlers.
type Directory interface {
	UpdateRole(ctx context.Context, id, rawRole string) (*domain.User, error)
}

// HTTP serves /api/me and /api/users/:id/role.
type HTTP struct {
	directory Directory
	auditor   audit.AuditLogger
}

// NewHTTP returns the user HTTP handler.
func NewHTTP(directory Directory, auditor audit.AuditLogger) *HTTP {
	return &HTTP{directory: directory, auditor: auditor}
}

// Me returns the caller's directory entry. The route runs behind RequireAuth,
// so the user is already loaded and current.
func (h *HTTP) Me(c *gin.Context) {
	u, ok := middleware.GetUser(c.Request.Context())
	if !ok {
		httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeMissingCredential, "authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identityhandler.UserJSON(u)})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateRole assigns a role to a user. Admin only; the role value must be a
// member of the closed role set.
func (h *HTTP) UpdateRole(c *gin.Context) {
	ctx := c.Request.Context()
	actor, err := rbac.RequireRole(ctx, domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, rbac.ErrUnauthenticated) {
			httpapi.Error(c, http.StatusUnauthorized, httpapi.CodeMissingCredential, "authentication required")
			return
		}
		httpapi.Error(c, http.StatusForbidden, httpapi.CodeForbidden, "admin role required")
		return
	}

	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Error(c, http.StatusBadRequest, httpapi.CodeInvalidRole, "role is required")
		return
	}

	updated, err := h.directory.UpdateRole(ctx, c.Param("id"), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRole):
			httpapi.Error(c, http.StatusBadRequest, httpapi.CodeInvalidRole, "unknown role")
		case errors.Is(err, repository.ErrNotFound):
			httpapi.Error(c, http.StatusNotFound, httpapi.CodeNotFound, "user not found")
		case httpapi.StorageError(c, err):
		default:
			httpapi.Internal(c)
		}
		return
	}

	h.auditor.LogEvent(ctx, actor.ID, audit.ActionRoleChanged, "user "+updated.ID+" -> "+string(updated.Role))
	c.JSON(http.StatusOK, gin.H{"user": identityhandler.UserJSON(updated)})
}
