// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/authgate/internal/platform/dberr"
)

// Querier is the subset of [pgxpool.Pool] the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// # Account Repository

// PostgresAccountRepository implements [AccountRepository] using pgx.
//
// Email uniqueness is enforced by the accounts_email_key unique index; a
// violation surfaces as [dberr.ErrConflict].
type PostgresAccountRepository struct {
	db Querier
}

// NewAccountRepository creates a new PostgreSQL implementation of [AccountRepository].
func NewAccountRepository(db Querier) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const (
	insertAccountQuery = `
		INSERT INTO accounts (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	findAccountByEmailQuery = `
		SELECT id, name, email, password_hash, role, created_at
		FROM accounts
		WHERE email = $1`
)

// Create inserts a new row into accounts.
func (repository *PostgresAccountRepository) Create(context context.Context, account *Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := repository.db.Exec(context, insertAccountQuery,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.CreatedAt,
	)

	return dberr.Wrap(err, "postgres_account_repo_create_failed")
}

// FindByEmail retrieves an account by its normalized email.
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string) (*Account, error) {
	account := &Account{}
	err := repository.db.QueryRow(context, findAccountByEmailQuery, email).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_find_by_email_failed")
	}

	return account, nil
}
