package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	"brandhub.dev/demodata/internal/identity"
)

// Accounts implements identity.AccountStore on the identity_accounts table.
type Accounts struct {
	db *sql.DB
	d  Dialect
}

var _ identity.AccountStore = (*Accounts)(nil)

func NewAccounts(db *sql.DB, d Dialect) *Accounts {
	return &Accounts{db: db, d: d}
}

func (s *Accounts) Create(ctx context.Context, acc *identity.Account) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	b := s.d.Bind
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`insert into identity_accounts(uid, email, secret_hash, display_name, created_at) values(%s,%s,%s,%s,%s)`,
			b(1), b(2), b(3), b(4), b(5)),
		acc.UID, strings.ToLower(acc.Email), acc.SecretHash, acc.DisplayName, acc.CreatedAt,
	)
	if err != nil {
		if s.d.Code(err) == codes.AlreadyExists {
			return identity.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Accounts) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select uid, email, secret_hash, display_name from identity_accounts where email=`+s.d.Bind(1),
		strings.ToLower(strings.TrimSpace(email)))
	var acc identity.Account
	if err := row.Scan(&acc.UID, &acc.Email, &acc.SecretHash, &acc.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}
