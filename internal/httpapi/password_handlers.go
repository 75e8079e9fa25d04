package httpapi

import (
	"errors"
	"net/http"

	"gatekeeper.org/internal/audit"
	"gatekeeper.org/internal/auth"
	"gatekeeper.org/internal/obs"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// genericResetMessage is returned for registered and unregistered emails
// alike, so the endpoint cannot be used to enumerate accounts.
const genericResetMessage = "If your email is registered, you will receive a password reset link"

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	obs.IncResetRequest()
	if err := a.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": genericResetMessage,
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "token and newPassword are required")
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleResetError(w, r, err)
		return
	}

	obs.IncResetCompletion()
	_ = audit.LogEvent(r.Context(), "auth.password.reset", nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password has been reset successfully",
	})
}

func handleResetError(w http.ResponseWriter, r *http.Request, err error) {
	// The owning account can disappear between issuance and consumption; the
	// caller only learns the token no longer works.
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, r, http.StatusBadRequest, "invalid or expired token")
		return
	}
	handleAuthError(w, r, err)
}
