package models

import "strings"

// Built-in role names. The permission set of each role lives in the
// authorization table, not here.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// User represents an account that can own groups and spend credits.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Email is the user's email address (unique, lowercased).
	Email string `json:"email"`

	// Role names the permission set granted to the user.
	Role string `json:"role"`

	// AdminID is the owning admin account for delegated roles.
	// Empty for self-registered admins.
	AdminID string `json:"adminId,omitempty"`

	// Credits is the remaining group-creation quota. Never negative.
	Credits int `json:"credits"`

	// PasswordHash is the bcrypt hash of a provisioned account's temporary password.
	PasswordHash string `json:"-"`

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64 `json:"createdAt"`
}

// NormalizeEmail lowercases and trims an email address so that membership
// checks compare like with like.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
