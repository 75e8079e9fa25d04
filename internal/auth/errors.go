package auth

import "errors"

var (
	ErrDuplicateUsername  = errors.New("auth: username already exists")
	ErrDuplicateEmail     = errors.New("auth: email already exists")
	ErrWeakPassword       = errors.New("auth: password does not meet complexity requirements")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrAccountLocked      = errors.New("auth: account is locked")
	ErrAccountDisabled    = errors.New("auth: account is disabled")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenNotFound      = errors.New("auth: token not found")
	ErrRateLimited        = errors.New("auth: too many requests")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
