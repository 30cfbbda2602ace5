// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "context"

// # Account Data Access

// AccountRepository is the credential store capability the service depends on.
//
// Implementations must enforce email uniqueness themselves and report:
//   - [dberr.ErrNotFound] when FindByEmail matches nothing,
//   - [dberr.ErrConflict] when Create hits an existing email,
//   - any other error for transport failures.
type AccountRepository interface {

	// FindByEmail returns the account registered under a normalized email.
	FindByEmail(context context.Context, email string) (*Account, error)

	// Create persists a brand-new account. CreatedAt is set by the repository
	// when zero.
	Create(context context.Context, account *Account) error
}
