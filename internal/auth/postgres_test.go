package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPGStoreTest(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGAccountsCreate(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("insert into accounts").
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := &Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", Roles: []string{RoleUser}}
	if err := store.Accounts(ctx).Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create should assign an id")
	}
}

func TestPGAccountsCreateDuplicate(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "accounts_username_key"})

	a := &Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.Accounts(ctx).Create(ctx, a); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestPGAccountsCreateDuplicateEmail(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "accounts_email_key"})

	a := &Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.Accounts(ctx).Create(ctx, a); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestPGAccountsCreateUnrelatedErrorPassesThrough(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	cause := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	mock.ExpectExec("insert into accounts").WillReturnError(cause)

	a := &Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	err := store.Accounts(ctx).Create(ctx, a)
	if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("non-unique-violation error was mapped to a duplicate: %v", err)
	}
	if !errors.As(err, new(*pgconn.PgError)) {
		t.Fatalf("driver error should surface unchanged, got %v", err)
	}
}

func TestPGAccountsFindByUsername(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cols := []string{"id", "username", "email", "password_hash", "roles", "locked", "disabled", "created_at", "updated_at"}
	mock.ExpectQuery("select id, username, email, password_hash, roles, locked, disabled, created_at, updated_at from accounts").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("01J", "alice", "alice@example.com", "hash", []byte(`["user","admin"]`), true, false, now, now))

	a, err := store.Accounts(ctx).FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if !a.Locked || a.Disabled {
		t.Fatalf("flag scan mismatch: %+v", a)
	}
	if !a.HasRole(RoleAdmin) {
		t.Fatalf("roles not decoded: %v", a.Roles)
	}
}

func TestPGAccountsFindByUsernameNotFound(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectQuery("from accounts where username").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Accounts(ctx).FindByUsername(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPGAccountsUpdateNotFound(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("update accounts set email").
		WillReturnResult(sqlmock.NewResult(0, 0))

	a := &Account{Username: "ghost", Email: "ghost@example.com", Roles: []string{RoleUser}}
	if err := store.Accounts(ctx).Update(ctx, a); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPGTokensReplace(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("delete from password_reset_tokens where username").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into password_reset_tokens").
		WithArgs("tok-1", "alice", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ResetTokens(ctx).Replace(ctx, &ResetToken{Token: "tok-1", Username: "alice", ExpiresAt: expires})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
}

func TestPGTokensReplaceRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("delete from password_reset_tokens where username").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into password_reset_tokens").
		WillReturnError(errors.New("pq: connection reset"))
	mock.ExpectRollback()

	err := store.ResetTokens(ctx).Replace(ctx, &ResetToken{Token: "tok-1", Username: "alice", ExpiresAt: time.Now()})
	if err == nil {
		t.Fatal("expected insert failure to surface")
	}
}

func TestPGTokensFindNotFound(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectQuery("from password_reset_tokens where token").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.ResetTokens(ctx).Find(ctx, "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestPGTokensDeleteNotFound(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("delete from password_reset_tokens where token").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.ResetTokens(ctx).Delete(ctx, "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestPGTokensDeleteExpired(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec("delete from password_reset_tokens where expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ResetTokens(ctx).DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
}
