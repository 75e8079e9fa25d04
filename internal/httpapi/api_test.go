package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatekeeper.org/internal/auth"
	"gatekeeper.org/internal/ratelimit"
)

type linkMailer struct {
	sent chan string
}

func (m *linkMailer) SendPasswordReset(_ context.Context, _, link string) error {
	m.sent <- link
	return nil
}

func (m *linkMailer) waitLink(t *testing.T) string {
	t.Helper()
	select {
	case link := <-m.sent:
		return link
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reset email")
		return ""
	}
}

type testEnv struct {
	handler http.Handler
	svc     *auth.Service
	mail    *linkMailer
	now     *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mail := &linkMailer{sent: make(chan string, 4)}
	svc, err := auth.NewService(auth.NewMemStore(),
		auth.WithSecret([]byte("test-secret")),
		auth.WithIssuer("test-issuer"),
		auth.WithMailer(mail),
		auth.WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(Options{
		Auth:    svc,
		Limiter: ratelimit.New(10000, time.Minute, 0),
		Version: "test",
	})
	return &testEnv{handler: api.Handler(), svc: svc, mail: mail, now: &now}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:54321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *testEnv) register(t *testing.T, username, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "Valid1Pass!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", username, rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("register response missing token")
	}
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/create-admin", "", map[string]string{
		"username": "root",
		"email":    "root@example.com",
		"password": "Valid1Pass!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create-admin: status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "root",
		"password": "Valid1Pass!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: status=%d body=%s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	return token
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["service"] != "gatekeeper-api" {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestReadyzWithoutDB(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/no-such-thing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "resource not found" {
		t.Fatalf("unexpected body: %v", body)
	}
	if rid, ok := body["request_id"].(string); !ok || rid == "" {
		t.Fatal("error body should carry a request id")
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated X-Request-Id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Fatalf("X-Request-Id = %q, want caller-supplied", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestFullAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.register(t, "alice", "alice@example.com")
	admin := env.adminToken(t)

	// A plain user cannot reach the admin surface.
	rec := env.do(t, http.MethodGet, "/admin/users/alice", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/admin/users/alice", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin get user: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["username"] != "alice" {
		t.Fatalf("unexpected account body: %v", body)
	}

	rec = env.do(t, http.MethodPost, "/admin/users/alice/lock", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lock: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "Valid1Pass!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("locked login: status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "account is locked, contact an administrator" {
		t.Fatalf("unexpected message: %v", body)
	}

	rec = env.do(t, http.MethodPost, "/admin/users/alice/unlock", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "Valid1Pass!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unlocked login: status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/admin/users/alice/roles", admin, map[string]any{
		"roles": []string{"user", "admin"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("roles: status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/admin/users/alice", admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/admin/users/alice", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status = %d, want 404", rec.Code)
	}
}

func TestAdminRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/admin/users/alice", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestDisableFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "bob@example.com")
	admin := env.adminToken(t)

	rec := env.do(t, http.MethodPost, "/admin/users/bob/disable", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "bob", "password": "Valid1Pass!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("disabled login: status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "account is disabled, contact an administrator" {
		t.Fatalf("unexpected message: %v", body)
	}

	rec = env.do(t, http.MethodPost, "/admin/users/bob/enable", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "bob", "password": "Valid1Pass!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("re-enabled login: status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)
	rec := env.do(t, http.MethodPost, "/admin/users/root/freeze", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
