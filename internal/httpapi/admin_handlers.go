package httpapi

import (
	"net/http"
	"strings"

	"gatekeeper.org/internal/audit"
)

type updateRolesRequest struct {
	Roles []string `json:"roles"`
}

// handleAdminUsers routes /admin/users/{username}[/{action}]. Lock, unlock,
// enable and disable are the administrative transitions of the account status
// gate; both flags are independent, so all four combinations are reachable.
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	username := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.adminGetUser(w, r, username)
		case http.MethodDelete:
			a.adminDeleteUser(w, r, username)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "lock":
		a.adminSetLocked(w, r, username, true)
	case "unlock":
		a.adminSetLocked(w, r, username, false)
	case "disable":
		a.adminSetDisabled(w, r, username, true)
	case "enable":
		a.adminSetDisabled(w, r, username, false)
	case "roles":
		a.adminUpdateRoles(w, r, username)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) adminGetUser(w http.ResponseWriter, r *http.Request, username string) {
	account, err := a.auth.FindAccount(r.Context(), username)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) adminDeleteUser(w http.ResponseWriter, r *http.Request, username string) {
	if err := a.auth.DeleteAccount(r.Context(), username); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.delete", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) adminSetLocked(w http.ResponseWriter, r *http.Request, username string, locked bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, err := a.auth.SetLocked(r.Context(), username, locked)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	event := "account.unlock"
	if locked {
		event = "account.lock"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"username": username,
	})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) adminSetDisabled(w http.ResponseWriter, r *http.Request, username string, disabled bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	account, err := a.auth.SetDisabled(r.Context(), username, disabled)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	event := "account.enable"
	if disabled {
		event = "account.disable"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"username": username,
	})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) adminUpdateRoles(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.auth.UpdateRoles(r.Context(), username, req.Roles)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.roles.update", map[string]any{
		"username": username,
		"roles":    account.Roles,
	})
	writeJSON(w, http.StatusOK, account)
}
