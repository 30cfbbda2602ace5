// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the account lifecycle: signup, sign-in and the HTTP
endpoints that establish and clear cookie-borne sessions.

# Architecture

  - Service: Orchestrates signup (uniqueness + hash + persist) and sign-in (lookup + verify).
  - Repository: [AccountRepository] with PostgreSQL and in-memory implementations.
  - Handler: Validates payloads, issues session tokens and sets the session cookie.

The password hash never leaves the service/repository boundary; everything the
handlers see is a [PublicAccount].
*/
package auth

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/authgate/internal/platform/sec"
)

// # Domain Entities

// Account is a stored identity record.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	Role         sec.Role  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicAccount is the client-safe projection of an [Account].
type PublicAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      sec.Role  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips the password hash.
func (account *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
}

// SessionIdentity returns the claims a session token is minted from.
func (account *PublicAccount) SessionIdentity() sec.SessionIdentity {
	return sec.SessionIdentity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	}
}

var emailLower = cases.Lower(language.Und)

// NormalizeEmail trims, NFC-normalizes and lower-cases an address so that
// uniqueness holds regardless of how the caller typed it.
func NormalizeEmail(email string) string {
	return emailLower.String(norm.NFC.String(strings.TrimSpace(email)))
}

// # Field Identifiers

const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldRole     = "role"
	FieldUser     = "user"
	FieldMessage  = "message"
)
