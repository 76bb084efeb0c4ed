package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"brandhub.dev/demodata/internal/identity"
	"brandhub.dev/demodata/internal/migrate"
)

func TestAccountsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := NewAccounts(db, Postgres)

	mock.ExpectExec(`insert into identity_accounts`).
		WithArgs("u1", "staff@example.com", "hash", "Staff", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = s.Create(context.Background(), &identity.Account{UID: "u1", Email: "Staff@example.com", SecretHash: "hash", DisplayName: "Staff"})
	if !errors.Is(err, identity.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestAccountsFindMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := NewAccounts(db, Postgres)

	mock.ExpectQuery(`select uid, email, secret_hash, display_name from identity_accounts where email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "secret_hash", "display_name"}))

	if _, err := s.FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, identity.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountsBackIdentityServiceOnSQLite(t *testing.T) {
	db, err := Open(SQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	m, err := migrate.NewManager(db, migrate.SQLite)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	tokens, err := identity.NewTokens("test-secret", 0)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := identity.NewService(NewAccounts(db, SQLite), tokens)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	ac := svc.NewContext("provision")
	uid, err := ac.CreateAccount(ctx, "staff@example.com", "secret1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ac.SignOut(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := ac.CreateAccount(ctx, "staff@example.com", "secret1"); identity.CodeOf(err) != identity.CodeEmailExists {
		t.Fatalf("expected email exists, got %v", err)
	}
	got, err := ac.SignIn(ctx, "staff@example.com", "secret1")
	if err != nil || got != uid {
		t.Fatalf("sign-in: uid=%q err=%v", got, err)
	}
	if _, err := ac.SignIn(ctx, "staff@example.com", "other"); identity.CodeOf(err) != identity.CodeCredentialMismatch {
		t.Fatalf("expected credential mismatch, got %v", err)
	}
}
