package data

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/parlorchat/parlor/internal/ports"
)

var _ ports.AccountStore = (*AccountRepo)(nil)

// AccountRepo stores password accounts in the accounts table.
type AccountRepo struct {
	DB    *sql.DB
	Clock TimeProvider
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db, Clock: &RealTimeProvider{}}
}

const accountColumns = `id::text, email, password_hash, email_verified, created_at`

// Create inserts acct. Email uniqueness is case-insensitive.
func (r *AccountRepo) Create(ctx context.Context, acct ports.Account) (ports.Account, error) {
	if acct.ID == "" {
		return ports.Account{}, errors.New("account ID cannot be empty")
	}
	acct.Email = strings.ToLower(acct.Email)
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = r.Clock.Now().UTC()
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		acct.ID, acct.Email, acct.PasswordHash, acct.EmailVerified, acct.CreatedAt)
	if err != nil {
		return ports.Account{}, mapAccountErr("insert account", err)
	}
	return acct, nil
}

// GetByEmail looks an account up by e-mail, ignoring case.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (ports.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row, "get account by email")
}

// GetByID looks an account up by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (ports.Account, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row, "get account by id")
}

// Delete removes the account with the given ID.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapAccountErr("delete account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapAccountErr("delete account", err)
	}
	if n == 0 {
		return ports.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row *sql.Row, op string) (ports.Account, error) {
	var a ports.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.EmailVerified, &a.CreatedAt); err != nil {
		return ports.Account{}, mapAccountErr(op, err)
	}
	return a, nil
}
