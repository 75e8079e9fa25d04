package auth

import (
	"context"
	"sync"
	"time"

	"gatekeeper.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store with mutex-guarded in-memory maps. It backs the
// service when no database DSN is configured and is the fixture store for
// tests. All mutations run under a single lock, which also gives ResetTokens
// the atomic delete-then-insert that the single-live-token invariant needs.
type MemStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // keyed by username, case-sensitive
	byEmail  map[string]string   // email -> username
	tokens   map[string]*ResetToken
	now      func() time.Time
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]*ResetToken),
		now:      time.Now,
	}
}

func (s *MemStore) Accounts(context.Context) AccountStore     { return (*memAccounts)(s) }
func (s *MemStore) ResetTokens(context.Context) ResetTokenStore { return (*memTokens)(s) }

type memAccounts MemStore

func (s *memAccounts) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Username]; ok {
		return ErrDuplicateUsername
	}
	if _, ok := s.byEmail[a.Email]; ok {
		return ErrDuplicateEmail
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := s.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := cloneAccount(a)
	s.accounts[a.Username] = cp
	s.byEmail[a.Email] = a.Username
	return nil
}

func (s *memAccounts) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneAccount(a), nil
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneAccount(s.accounts[username]), nil
}

func (s *memAccounts) Update(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[a.Username]
	if !ok {
		return ErrUserNotFound
	}
	if a.Email != existing.Email {
		if _, taken := s.byEmail[a.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[a.Email] = a.Username
	}
	cp := cloneAccount(a)
	cp.ID = existing.ID
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now().UTC()
	s.accounts[a.Username] = cp
	return nil
}

func (s *memAccounts) UpdatePassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return ErrUserNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memAccounts) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byEmail, a.Email)
	delete(s.accounts, username)
	for token, t := range s.tokens {
		if t.Username == username {
			delete(s.tokens, token)
		}
	}
	return nil
}

type memTokens MemStore

func (s *memTokens) Replace(_ context.Context, t *ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, existing := range s.tokens {
		if existing.Username == t.Username {
			delete(s.tokens, token)
		}
	}
	cp := *t
	s.tokens[t.Token] = &cp
	return nil
}

func (s *memTokens) Find(_ context.Context, token string) (*ResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTokens) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, token)
	return nil
}

func (s *memTokens) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	removed := 0
	for token, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

func cloneAccount(a *Account) *Account {
	cp := *a
	cp.Roles = append([]string(nil), a.Roles...)
	return &cp
}
