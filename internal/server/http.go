// Package server assembles the HTTP API.
package server

import (
	"github.com/gin-gonic/gin"

	healthhandler "siteguard/backend/internal/health/handler"
	identityhandler "siteguard/backend/internal/identity/handler"
	"siteguard/backend/internal/security"
	"siteguard/backend/internal/server/middleware"
	userhandler "siteguard/backend/internal/user/handler"
)

// Deps holds the handler and middleware dependencies for the router.
type Deps struct {
	// Auth serves the login flow endpoints.
	Auth *identityhandler.HTTP
	// Users serves the directory endpoints.
	Users *userhandler.HTTP
	// Health serves readiness.
	Health *healthhandler.HTTP
	// Tokens validates session credentials in the auth middleware.
	Tokens *security.TokenProvider
	// UserLoader resolves credential subjects to directory entries.
	UserLoader middleware.UserLoader
}

// NewRouter builds the router.
//
// Route → handler mapping:
//   - GET  /auth/login           → internal/identity/handler (public)
//   - GET  /auth/callback        → internal/identity/handler (public)
//   - POST /auth/logout          → internal/identity/handler (optional auth)
//   - GET  /api/me               → internal/user/handler (auth)
//   - PUT  /api/users/:id/role   → internal/user/handler (auth + admin check)
//   - GET  /health               → internal/health/handler (public)
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.ClientIP())

	router.GET("/health", deps.Health.Health)

	auth := router.Group("/auth")
	auth.GET("/login", deps.Auth.Login)
	auth.GET("/callback", deps.Auth.Callback)
	auth.POST("/logout", middleware.OptionalAuth(deps.Tokens, deps.UserLoader), deps.Auth.Logout)

	api := router.Group("/api")
	api.Use(middleware.RequireAuth(deps.Tokens, deps.UserLoader))
	api.GET("/me", deps.Users.Me)
	api.PUT("/users/:id/role", deps.Users.UpdateRole)

	return router
}
