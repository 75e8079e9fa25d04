package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatekeeper.org/internal/obs"
)

const (
	defaultIssuer   = "gatekeeper"
	defaultTokenTTL = 15 * time.Minute
	defaultResetTTL = 24 * time.Hour
)

var errMissingSecret = errors.New("auth: signing secret is not configured")

// Mailer delivers password reset messages. Delivery is fire-and-forget; the
// reset flow never waits on it.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// Service implements registration, login, token issuance/validation, account
// lifecycle transitions and the password reset flow on top of a Store.
type Service struct {
	store Store
	now   func() time.Time

	secret       []byte
	issuer       string
	tokenTTL     time.Duration
	resetTTL     time.Duration
	resetBaseURL string
	mailer       Mailer
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecret sets the HS256 signing secret. Token issuance and validation
// fail until a non-empty secret is configured.
func WithSecret(secret []byte) ServiceOption {
	return func(s *Service) error {
		if len(secret) == 0 {
			return errMissingSecret
		}
		s.secret = secret
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithTokenTTL configures the bearer token validity window.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures the password reset token validity window.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.resetTTL = ttl
		}
		return nil
	}
}

// WithResetBaseURL sets the frontend URL embedded into reset links.
func WithResetBaseURL(base string) ServiceOption {
	return func(s *Service) error {
		s.resetBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
		return nil
	}
}

// WithMailer sets the outbound email collaborator.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) error {
		s.mailer = m
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:        store,
		now:          time.Now,
		issuer:       defaultIssuer,
		tokenTTL:     defaultTokenTTL,
		resetTTL:     defaultResetTTL,
		resetBaseURL: "http://localhost:3000",
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates an account with the default user role and issues its first
// bearer token. Duplicate username wins over a weak password when both apply.
func (s *Service) Register(ctx context.Context, username, email, password string) (*Account, string, error) {
	return s.register(ctx, username, email, password, []string{RoleUser})
}

// CreateAdmin creates an account carrying the admin role in addition to the
// default one. Intended for initial setup or existing administrators.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (*Account, string, error) {
	return s.register(ctx, username, email, password, []string{RoleUser, RoleAdmin})
}

func (s *Service) register(ctx context.Context, username, email, password string, roles []string) (*Account, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return nil, "", ErrInvalidInput
	}

	accounts := s.store.Accounts(ctx)
	if _, err := accounts.FindByUsername(ctx, username); err == nil {
		return nil, "", ErrDuplicateUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, "", err
	}

	if err := ValidatePassword(password); err != nil {
		return nil, "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	account := &Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := accounts.Create(ctx, account); err != nil {
		return nil, "", err
	}

	token, _, err := s.IssueToken(account.Username, account.Roles)
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

// Login authenticates credentials and issues a bearer token. The account
// status gate runs before credential comparison: a locked or disabled account
// is rejected without ever touching the password hash.
func (s *Service) Login(ctx context.Context, username, password string) (*Account, string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", time.Time{}, ErrInvalidInput
	}

	account, err := s.store.Accounts(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if err := CheckStatus(account); err != nil {
		return nil, "", time.Time{}, err
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.IssueToken(account.Username, account.Roles)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return account, token, expiresAt, nil
}

// RequestPasswordReset starts the forgot-password flow. It never reports
// whether the email is registered: an unknown address is only logged
// internally and the caller sees the same outcome either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}

	account, err := s.store.Accounts(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			obs.LogRequest(map[string]any{
				"ts":    s.now().UTC().Format(time.RFC3339Nano),
				"level": "info",
				"msg":   "password_reset_unknown_email",
			})
			return nil
		}
		return err
	}

	token := &ResetToken{
		Token:     uuid.NewString(),
		Username:  account.Username,
		ExpiresAt: s.now().UTC().Add(s.resetTTL),
	}
	if err := s.store.ResetTokens(ctx).Replace(ctx, token); err != nil {
		return err
	}

	if s.mailer != nil {
		link := s.resetBaseURL + "/reset-password?token=" + token.Token
		go func(to, link string) {
			if err := s.mailer.SendPasswordReset(context.Background(), to, link); err != nil {
				obs.LogRequest(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "error",
					"msg":   "password_reset_email_failed",
					"error": err.Error(),
				})
			}
		}(account.Email, link)
	}
	return nil
}

// ResetPassword consumes a reset token: the new password is persisted and the
// token record deleted so it can never be replayed. An expired token is
// removed on access and leaves the account untouched.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return ErrInvalidInput
	}

	tokens := s.store.ResetTokens(ctx)
	record, err := tokens.Find(ctx, token)
	if err != nil {
		return err
	}
	if record.Expired(s.now().UTC()) {
		_ = tokens.Delete(ctx, token)
		return ErrTokenExpired
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Accounts(ctx).UpdatePassword(ctx, record.Username, hash); err != nil {
		return err
	}
	return tokens.Delete(ctx, token)
}

// FindAccount loads an account by username.
func (s *Service) FindAccount(ctx context.Context, username string) (*Account, error) {
	return s.store.Accounts(ctx).FindByUsername(ctx, strings.TrimSpace(username))
}

// SetLocked toggles the administrative lock flag.
func (s *Service) SetLocked(ctx context.Context, username string, locked bool) (*Account, error) {
	return s.updateFlags(ctx, username, func(a *Account) { a.Locked = locked })
}

// SetDisabled toggles the administrative disable flag.
func (s *Service) SetDisabled(ctx context.Context, username string, disabled bool) (*Account, error) {
	return s.updateFlags(ctx, username, func(a *Account) { a.Disabled = disabled })
}

// UpdateRoles replaces the account's role set.
func (s *Service) UpdateRoles(ctx context.Context, username string, roles []string) (*Account, error) {
	normalized := dedupeRoles(roles)
	if len(normalized) == 0 {
		return nil, ErrInvalidInput
	}
	return s.updateFlags(ctx, username, func(a *Account) { a.Roles = normalized })
}

func (s *Service) updateFlags(ctx context.Context, username string, mutate func(*Account)) (*Account, error) {
	accounts := s.store.Accounts(ctx)
	account, err := accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	mutate(account)
	if err := accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes an account and any live reset token it owns.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	return s.store.Accounts(ctx).Delete(ctx, strings.TrimSpace(username))
}

// SweepExpiredResetTokens physically removes reset tokens whose validity
// window has passed. Expired tokens are otherwise only deleted lazily when
// touched by ResetPassword.
func (s *Service) SweepExpiredResetTokens(ctx context.Context) (int, error) {
	return s.store.ResetTokens(ctx).DeleteExpired(ctx)
}
