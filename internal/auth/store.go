package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	ResetTokens(ctx context.Context) ResetTokenStore
}

// AccountStore manages identity records.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	Delete(ctx context.Context, username string) error
}

// ResetTokenStore manages single-use password reset tokens.
//
// Replace must atomically remove any existing token for the owning username
// before inserting the new one, so that concurrent reset requests can never
// leave two live tokens for the same user.
type ResetTokenStore interface {
	Replace(ctx context.Context, t *ResetToken) error
	Find(ctx context.Context, token string) (*ResetToken, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int, error)
}
