package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/db"
	healthhandler "siteguard/backend/internal/health/handler"
	identityhandler "siteguard/backend/internal/identity/handler"
	identityservice "siteguard/backend/internal/identity/service"
	"siteguard/backend/internal/security"
	"siteguard/backend/internal/user/domain"
	userhandler "siteguard/backend/internal/user/handler"
)

type stubLoginService struct{}

func (stubLoginService) InitiateLogin(ctx context.Context) (*identityservice.LoginStart, error) {
	return &identityservice.LoginStart{AuthorizationURL: "https://login.example/authorize?state=s1", State: "s1"}, nil
}

func (stubLoginService) CompleteLogin(ctx context.Context, state, code string) (*identityservice.LoginResult, error) {
	return nil, nil
}

func (stubLoginService) Logout(ctx context.Context, userID string) {}

type stubDirectory struct{}

func (stubDirectory) UpdateRole(ctx context.Context, id, rawRole string) (*domain.User, error) {
	return nil, nil
}

type stubAuditor struct{}

func (stubAuditor) LogEvent(ctx context.Context, userID, action, detail string) {}

type stubPool struct{}

func (stubPool) Ping(ctx context.Context) error { return nil }
func (stubPool) Stats() db.Stats                { return db.Stats{} }

type stubLoader struct{}

func (stubLoader) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return nil, nil
}

func TestRouterWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	router := NewRouter(Deps{
		Auth:       identityhandler.NewHTTP(stubLoginService{}),
		Users:      userhandler.NewHTTP(stubDirectory{}, stubAuditor{}),
		Health:     healthhandler.NewHTTP(stubPool{}),
		Tokens:     tokens,
		UserLoader: stubLoader{},
	})

	cases := []struct {
		method, target string
		status         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/auth/login", http.StatusOK},
		{http.MethodPost, "/auth/logout", http.StatusNoContent},
		{http.MethodGet, "/api/me", http.StatusUnauthorized},
		{http.MethodPut, "/api/users/u1/role", http.StatusUnauthorized},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.target, nil))
		if w.Code != tc.status {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.target, w.Code, tc.status)
		}
	}
}
