package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pscheid92/serverlist/internal/domain"
)

// DBTX is the subset of a pool the repositories use. It is implemented by
// *pgxpool.Pool and pgxmock.PgxPoolIface.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AccountRepo struct {
	db DBTX
}

var _ domain.AccountRepository = (*AccountRepo)(nil)

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, email, password_hash, password_salt, created_at`

// Create inserts a new account. The email column is case-insensitive, so
// differently cased duplicates are rejected with ErrEmailTaken too.
func (r *AccountRepo) Create(ctx context.Context, email string, hash, salt []byte) (*domain.Account, error) {
	const q = `
INSERT INTO accounts (id, email, password_hash, password_salt)
VALUES ($1, $2, $3, $4)
RETURNING ` + accountColumns

	row := r.db.QueryRow(ctx, q, uuid.New(), email, hash, salt)
	account, err := scanAccount(row)
	if isUniqueViolation(err) {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.PasswordSalt, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
