package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"siteguard/backend/internal/db"
	"siteguard/backend/internal/security"
	"siteguard/backend/internal/user/domain"
)

type fakeLoader struct {
	users map[string]*domain.User
	err   error
}

func (l *fakeLoader) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.users[externalID], nil
}

func newAuthRig(t *testing.T, loader *fakeLoader, mw func(*security.TokenProvider, UserLoader) gin.HandlerFunc) (*gin.Engine, *security.TokenProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	router := gin.New()
	router.GET("/probe", mw(tokens, loader), func(c *gin.Context) {
		u, ok := GetUser(c.Request.Context())
		if !ok {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": u.ID, "role": string(u.Role)})
	})
	return router, tokens
}

func doProbe(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRequireAuthMissingCredential(t *testing.T) {
	router, _ := newAuthRig(t, &fakeLoader{}, RequireAuth)

	w := doProbe(router, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != "missing_credential" {
		t.Errorf("code = %v, want missing_credential", body["code"])
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	router, _ := newAuthRig(t, &fakeLoader{}, RequireAuth)

	w := doProbe(router, "Bearer garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != "invalid_token" {
		t.Errorf("code = %v, want invalid_token", body["code"])
	}
}

func TestRequireAuthExpiredTokenDistinct(t *testing.T) {
	loader := &fakeLoader{}
	gin.SetMode(gin.TestMode)
	short, err := security.NewTokenProvider([]byte("test-signing-secret-0123456789ab"), "HS256", "siteguard-auth", time.Millisecond)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	router := gin.New()
	router.GET("/probe", RequireAuth(short, loader), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, _, err := short.Issue("ext-1", "a@x.com", "Viewer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	w := doProbe(router, "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != "token_expired" {
		t.Errorf("code = %v, want token_expired", body["code"])
	}
}

func TestRequireAuthLoadsCurrentUser(t *testing.T) {
	loader := &fakeLoader{users: map[string]*domain.User{
		"ext-1": {ID: "u1", ExternalID: "ext-1", Role: domain.RoleAdmin},
	}}
	router, tokens := newAuthRig(t, loader, RequireAuth)

	// The credential says Viewer; the directory says Admin. The directory wins.
	token, _, err := tokens.Issue("ext-1", "a@x.com", "Viewer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := doProbe(router, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["user_id"] != "u1" || body["role"] != "Admin" {
		t.Errorf("unexpected identity: %v", body)
	}
}

func TestRequireAuthUnknownSubject(t *testing.T) {
	router, tokens := newAuthRig(t, &fakeLoader{users: map[string]*domain.User{}}, RequireAuth)

	token, _, err := tokens.Issue("ghost", "a@x.com", "Viewer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := doProbe(router, "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != "unknown_user" {
		t.Errorf("code = %v, want unknown_user", body["code"])
	}
}

func TestRequireAuthPoolExhaustedIs503(t *testing.T) {
	loader := &fakeLoader{err: db.ErrPoolExhausted}
	router, tokens := newAuthRig(t, loader, RequireAuth)

	token, _, err := tokens.Issue("ext-1", "a@x.com", "Viewer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := doProbe(router, "Bearer "+token)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("no Retry-After header on pool exhaustion")
	}
}

func TestOptionalAuthAnonymous(t *testing.T) {
	router, _ := newAuthRig(t, &fakeLoader{}, OptionalAuth)

	w := doProbe(router, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["anonymous"] != true {
		t.Errorf("expected anonymous pass-through, got %v", body)
	}
}

func TestOptionalAuthBadTokenStillAnonymous(t *testing.T) {
	router, _ := newAuthRig(t, &fakeLoader{}, OptionalAuth)

	w := doProbe(router, "Bearer garbage")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["anonymous"] != true {
		t.Errorf("expected anonymous pass-through, got %v", body)
	}
}

func TestOptionalAuthLoadsUser(t *testing.T) {
	loader := &fakeLoader{users: map[string]*domain.User{
		"ext-1": {ID: "u1", ExternalID: "ext-1", Role: domain.RoleViewer},
	}}
	router, tokens := newAuthRig(t, loader, OptionalAuth)

	token, _, err := tokens.Issue("ext-1", "a@x.com", "Viewer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := doProbe(router, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := decodeBody(t, w); body["user_id"] != "u1" {
		t.Errorf("expected loaded user, got %v", body)
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header, want string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extractBearer(tc.header); got != tc.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
