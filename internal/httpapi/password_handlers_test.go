package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func resetToken(t *testing.T, link string) string {
	t.Helper()
	const marker = "?token="
	i := strings.Index(link, marker)
	if i < 0 {
		t.Fatalf("no token in link %q", link)
	}
	return link[i+len(marker):]
}

func TestForgotPasswordKnownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/password/forgot", "", map[string]string{
		"email": "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["message"] != genericResetMessage {
		t.Fatalf("unexpected body: %v", body)
	}
	if link := env.mail.waitLink(t); !strings.Contains(link, "/reset-password?token=") {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestForgotPasswordUnknownEmailIsIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	known := env.do(t, http.MethodPost, "/password/forgot", "", map[string]string{
		"email": "alice@example.com",
	})
	env.mail.waitLink(t)
	unknown := env.do(t, http.MethodPost, "/password/forgot", "", map[string]string{
		"email": "nobody@example.com",
	})

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("status mismatch: known=%d unknown=%d", known.Code, unknown.Code)
	}
	if decodeBody(t, known)["message"] != decodeBody(t, unknown)["message"] {
		t.Fatal("responses must be identical regardless of registration")
	}
	select {
	case link := <-env.mail.sent:
		t.Fatalf("no email expected for unknown address, got %s", link)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResetPasswordEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/password/forgot", "", map[string]string{
		"email": "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: status = %d", rec.Code)
	}
	token := resetToken(t, env.mail.waitLink(t))

	rec = env.do(t, http.MethodPost, "/password/reset", "", map[string]string{
		"token":       token,
		"newPassword": "Fresh2Pass!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["message"] != "password has been reset successfully" {
		t.Fatalf("unexpected body: %v", body)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "Fresh2Pass!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "Valid1Pass!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatal("old password must stop working")
	}

	// Replay of the consumed token.
	rec = env.do(t, http.MethodPost, "/password/reset", "", map[string]string{
		"token":       token,
		"newPassword": "Third3Pass!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replay: status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid or expired token" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/password/forgot", "", map[string]string{
		"email": "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: status = %d", rec.Code)
	}
	token := resetToken(t, env.mail.waitLink(t))

	*env.now = env.now.Add(24*time.Hour + time.Minute)

	rec = env.do(t, http.MethodPost, "/password/reset", "", map[string]string{
		"token":       token,
		"newPassword": "Fresh2Pass!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "token has expired" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestResetPasswordMissingFields(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/password/reset", "", map[string]string{
		"token": "something",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "token and newPassword are required" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestResetPasswordUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/password/reset", "", map[string]string{
		"token":       "never-issued",
		"newPassword": "Fresh2Pass!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid or expired token" {
		t.Fatalf("unexpected body: %v", body)
	}
}
