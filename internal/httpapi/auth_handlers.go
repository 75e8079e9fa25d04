package httpapi

import (
	"net/http"
	"strings"
	"time"

	"gatekeeper.org/internal/audit"
	"gatekeeper.org/internal/obs"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account, token, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.IncRegistration()
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"username": account.Username,
	})

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:    token,
		Username: account.Username,
		Roles:    account.Roles,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	start := time.Now()
	account, token, _, err := a.auth.Login(r.Context(), req.Username, req.Password)
	obs.ObserveAuthDuration(time.Since(start))
	if err != nil {
		obs.IncLoginFailure()
		handleAuthError(w, r, err)
		return
	}

	obs.IncLoginSuccess()
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": account.Username,
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		Username: account.Username,
		Roles:    account.Roles,
	})
}

func (a *API) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account, _, err := a.auth.CreateAdmin(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.IncRegistration()
	_ = audit.LogEvent(r.Context(), "auth.admin.create", map[string]any{
		"username": account.Username,
	})

	writeJSON(w, http.StatusCreated, account)
}
