// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/authgate/internal/platform/apperr"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/dberr"
	"github.com/taibuivan/authgate/internal/platform/sec"
	"github.com/taibuivan/authgate/pkg/uuidv7"
)

// # Contracts & Types

// PasswordHasher hashes and verifies secrets. [*sec.Hasher] implements it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hash string) (bool, error)
}

// Service implements the signup and sign-in use cases.
//
// Each call is atomic end to end; nothing is rolled back if the client goes
// away after the account has been written.
type Service struct {
	accountRepository AccountRepository
	hasher            PasswordHasher
	now               func() time.Time
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(accounts AccountRepository, hasher PasswordHasher) *Service {
	return &Service{
		accountRepository: accounts,
		hasher:            hasher,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// # Registration Flow

// SignupInput holds the data required to enroll a new account.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     sec.Role
}

/*
Signup checks uniqueness, hashes the password and persists a new account.

The lookup is only a fast path: two concurrent signups for one email can both
miss it, and the store's unique constraint then rejects the second insert,
which is mapped to the same [ErrDuplicateAccount].
*/
func (service *Service) Signup(context context.Context, input SignupInput) (*PublicAccount, error) {
	email := NormalizeEmail(input.Email)

	role := input.Role
	if role == "" {
		role = sec.RoleUser
	}
	if !role.Assignable() {
		return nil, apperr.ValidationError("Invalid role", apperr.FieldError{
			Field:   FieldRole,
			Message: "must be one of: admin, user",
		})
	}

	_, err := service.accountRepository.FindByEmail(context, email)
	switch {
	case err == nil:
		return nil, ErrDuplicateAccount
	case !errors.Is(err, dberr.ErrNotFound):
		return nil, fmt.Errorf("auth_service_signup_lookup_failed: %w", err)
	}

	hashedPassword, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	account := &Account{
		ID:           uuidv7.New(),
		Name:         input.Name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		CreatedAt:    service.now(),
	}

	if err := service.accountRepository.Create(context, account); err != nil {
		if errors.Is(err, dberr.ErrConflict) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("auth_service_signup_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_created",
		slog.String("account_id", account.ID),
		slog.String("role", string(account.Role)),
	)

	return account.Public(), nil
}

// # Authentication Flow

/*
SignIn verifies credentials and returns the account's public fields.

An unknown email and a wrong password both yield [ErrInvalidCredentials] so
callers cannot tell which check failed.
*/
func (service *Service) SignIn(context context.Context, email, password string) (*PublicAccount, error) {
	account, err := service.accountRepository.FindByEmail(context, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth_service_signin_lookup_failed: %w", err)
	}

	matches, err := service.hasher.Compare(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth_service_compare_failed: %w", err)
	}
	if !matches {
		return nil, ErrInvalidCredentials
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_signed_in",
		slog.String("account_id", account.ID),
	)

	return account.Public(), nil
}
