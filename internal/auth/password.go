package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// passwordSymbols is the fixed set of special characters accepted by the
// complexity policy. Characters outside letters, digits and this set make a
// password invalid outright.
const passwordSymbols = "@$!%*?&"

const minPasswordLength = 8

// HashPassword hashes a plaintext password using bcrypt. Callers are expected
// to run ValidatePassword first; hashing is never applied to a password that
// fails policy.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
// bcrypt's comparison does not leak the mismatch position through timing.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidatePassword enforces the complexity policy: at least 8 characters with
// one lowercase letter, one uppercase letter, one digit and one symbol from
// passwordSymbols. Returns ErrWeakPassword on any violation.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	var lower, upper, digit, symbol bool
	for _, c := range password {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, c):
			symbol = true
		default:
			return ErrWeakPassword
		}
	}
	if !lower || !upper || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}
