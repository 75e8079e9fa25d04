package auth

import "time"

// Built-in roles. Every account carries at least RoleUser.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is an identity record. Username and email are each globally unique;
// Username is the case-sensitive primary key used in token subjects.
// Locked and Disabled are independent administrative flags, so an account can
// be in any of the four combinations.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	Locked       bool      `json:"locked"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the account carries the given role.
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ResetToken is a single-use password recovery credential. At most one live
// token exists per username; the record is deleted on successful consumption.
type ResetToken struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Expired reports whether the token's validity window has passed.
func (t *ResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
