package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gatekeeper.org/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

const weakPasswordMessage = "password must be at least 8 characters long and contain at least " +
	"one uppercase letter, one lowercase letter, one number, and one special character"

// handleAuthError translates domain errors into client-visible responses.
// Account status messages are deliberately disclosed in the body.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "required fields are missing or invalid")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, weakPasswordMessage)
	case errors.Is(err, auth.ErrDuplicateUsername):
		writeError(w, r, http.StatusConflict, "username already exists")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, "email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusUnauthorized, "account is locked, contact an administrator")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, r, http.StatusUnauthorized, "account is disabled, contact an administrator")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusBadRequest, "token has expired")
	case errors.Is(err, auth.ErrTokenNotFound), errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusBadRequest, "invalid or expired token")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
