package auth

import (
	"context"
	"strings"
)

type userContextKey struct{}
type rolesContextKey struct{}

// ContextWithUser stores the authenticated username and roles in the context.
func ContextWithUser(ctx context.Context, username string, roles []string) context.Context {
	ctx = context.WithValue(ctx, userContextKey{}, strings.TrimSpace(username))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesContextKey{}, dedupeRoles(roles))
	}
	return ctx
}

// UserFromContext extracts the authenticated username from the context.
func UserFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns the roles stored in context (deduplicated and
// lower-cased).
func RolesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	v, ok := ctx.Value(rolesContextKey{}).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRoleInContext checks whether the context carries the specified role.
func HasRoleInContext(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
