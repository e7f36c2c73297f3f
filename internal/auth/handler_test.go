package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexushq/nexus/internal/shared"
	_ "github.com/nexushq/nexus/testing"
)

type stubRepo struct {
	user *User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newAuthHandler(t *testing.T, repo Repository) (*Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	handler := NewHandler(nil, NewService(repo), sessionManager)
	return handler, sessionManager
}

func requestWithSession(t *testing.T, sm *shared.SessionManager, method, target, body string) (*http.Request, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func activeUser(t *testing.T, password string) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tenant := int64(1)
	return &User{
		ID:           2,
		Email:        "alice@test.local",
		PasswordHash: string(hash),
		Role:         "user",
		TenantID:     &tenant,
		IsActive:     true,
	}
}

func TestLoginSuccessBindsSession(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{user: activeUser(t, "correctpass")})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/auth/login",
		`{"email":"alice@test.local","password":"correctpass"}`)
	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.User() != "2" {
		t.Fatalf("expected session bound to user 2, got %q", sess.User())
	}

	var body struct {
		User struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != 2 || body.User.Role != "user" {
		t.Fatalf("unexpected user payload: %+v", body.User)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{user: activeUser(t, "correctpass")})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/auth/login",
		`{"email":"alice@test.local","password":"wrongpass1"}`)
	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("session must stay anonymous after a failed login")
	}
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.IsActive = false
	handler, sm := newAuthHandler(t, &stubRepo{user: user})

	req, _ := requestWithSession(t, sm, http.MethodPost, "/auth/login",
		`{"email":"alice@test.local","password":"correctpass"}`)
	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{})

	req, _ := requestWithSession(t, sm, http.MethodPost, "/auth/login",
		`{"email":"not-an-email","password":"short"}`)
	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{user: activeUser(t, "correctpass")})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/auth/logout", "")
	sess.SetUser("2")

	res := httptest.NewRecorder()
	handler.handleLogout(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if err := sm.Commit(req.Context(), res, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	found := false
	for _, c := range res.Result().Cookies() {
		if c.Name == sm.CookieName() && c.MaxAge < 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected expired session cookie after logout")
	}
}
