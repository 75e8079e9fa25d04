package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"gatekeeper.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore     { return &pgAccounts{db: s.db} }
func (s *PGStore) ResetTokens(context.Context) ResetTokenStore { return &pgTokens{db: s.db} }

// Account store ------------------------------------------------------------
type pgAccounts struct{ db *sql.DB }

func (s *pgAccounts) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	roles, _ := json.Marshal(a.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, email, password_hash, roles, locked, disabled) values($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Username, a.Email, a.PasswordHash, roles, a.Locked, a.Disabled,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *pgAccounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.findBy(ctx, "username", username)
}

func (s *pgAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findBy(ctx, "email", email)
}

func (s *pgAccounts) findBy(ctx context.Context, column, value string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select id, username, email, password_hash, roles, locked, disabled, created_at, updated_at from accounts where %s=$1`, column), value)
	var (
		a     Account
		roles []byte
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &roles, &a.Locked, &a.Disabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &a.Roles)
	return &a, nil
}

func (s *pgAccounts) Update(ctx context.Context, a *Account) error {
	roles, _ := json.Marshal(a.Roles)
	res, err := s.db.ExecContext(ctx,
		`update accounts set email=$1, roles=$2, locked=$3, disabled=$4, updated_at=now() where username=$5`,
		a.Email, roles, a.Locked, a.Disabled, a.Username,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return requireRowAffected(res)
}

func (s *pgAccounts) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$1, updated_at=now() where username=$2`,
		passwordHash, username,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *pgAccounts) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where username=$1`, username)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Reset token store --------------------------------------------------------
type pgTokens struct{ db *sql.DB }

// Replace removes any live token for the owning username and inserts the new
// one inside a single transaction, keeping at most one live token per user
// under concurrent forgot-password requests.
func (s *pgTokens) Replace(ctx context.Context, t *ResetToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from password_reset_tokens where username=$1`, t.Username); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into password_reset_tokens(token, username, expires_at) values($1,$2,$3)`,
		t.Token, t.Username, t.ExpiresAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgTokens) Find(ctx context.Context, token string) (*ResetToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select token, username, expires_at from password_reset_tokens where token=$1`, token)
	var t ResetToken
	if err := row.Scan(&t.Token, &t.Username, &t.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *pgTokens) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `delete from password_reset_tokens where token=$1`, token)
	if err != nil {
		return err
	}
	if err := requireRowAffected(res); err != nil {
		return ErrTokenNotFound
	}
	return nil
}

func (s *pgTokens) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from password_reset_tokens where expires_at < now()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
