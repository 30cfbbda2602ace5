// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/taibuivan/authgate/internal/platform/apperr"
)

// # Input Constraints

const (
	NameMinLength     = 2
	NameMaxLength     = 255
	EmailMaxLength    = 255
	PasswordMinLength = 6
	PasswordMaxLength = 128
)

// # Response Messages

// These strings are part of the API contract; clients match on them.
const (
	MessageSignedUp  = "User registered successfully"
	MessageSignedIn  = "User signed in successfully"
	MessageSignedOut = "Signed out successfully"
)

// # Domain Errors

var (
	// ErrDuplicateAccount is returned by signup when the email is already registered.
	ErrDuplicateAccount = apperr.New(http.StatusBadRequest, "DUPLICATE_ACCOUNT", "User with this email already exists")

	// ErrInvalidCredentials is returned by sign-in for an unknown email and for a
	// wrong password alike.
	ErrInvalidCredentials = apperr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
)
