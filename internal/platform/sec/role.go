// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// Role represents the authorization level granted to a caller.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "admin"

	// Default role for registered accounts
	RoleUser Role = "user"

	// Unauthenticated callers. Never assigned to a stored account.
	RoleGuest Role = "guest"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// Assignable reports whether the role may be stored on an account.
func (r Role) Assignable() bool {
	return r == RoleAdmin || r == RoleUser
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {
	switch r {
	case RoleAdmin:
		return 40
	case RoleUser:
		return 10
	default:
		return 0
	}
}
