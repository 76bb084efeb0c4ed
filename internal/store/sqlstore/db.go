// Package sqlstore implements the document store and identity account store
// on a SQL database (PostgreSQL via pgx, or embedded SQLite).
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc/codes"
	_ "modernc.org/sqlite"
)

const (
	pgErrInsufficientPrivilege = "42501"
	pgErrUniqueViolation       = "23505"
	pgErrQueryCanceled         = "57014"
	pgErrSerializationFailure  = "40001"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	Name   string
	driver string
}

var (
	Postgres = Dialect{Name: "postgres", driver: "pgx"}
	SQLite   = Dialect{Name: "sqlite", driver: "sqlite"}
)

// DialectFor resolves a dialect by name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case Postgres.Name, "pg", "pgx":
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("sqlstore: unsupported dialect %q", name)
}

// Bind returns the n-th (1-based) parameter placeholder.
func (d Dialect) Bind(n int) string {
	if d.Name == Postgres.Name {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Code maps a driver error to a diagnostic code.
func (d Dialect) Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrInsufficientPrivilege:
			return codes.PermissionDenied
		case pgErrUniqueViolation:
			return codes.AlreadyExists
		case pgErrQueryCanceled:
			return codes.Canceled
		case pgErrSerializationFailure:
			return codes.Aborted
		}
		return codes.Unknown
	}
	if errors.Is(err, sql.ErrNoRows) {
		return codes.NotFound
	}
	if d.Name == SQLite.Name && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return codes.AlreadyExists
	}
	return codes.Unknown
}

// Open connects to the database with pool defaults suited to the dialect.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.Name == SQLite.Name {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
		return db, nil
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
