// Package id generates and validates the prefixed identifiers used for
// groups, expenses and provisioned users.
//
// IDs are TypeIDs in the form "prefix_suffix": K-sortable (UUIDv7-based),
// globally unique and safe to use in URLs and file names.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	PrefixGroup   Prefix = "grp"
	PrefixExpense Prefix = "exp"
	PrefixUser    Prefix = "usr"
)

// New generates a new ID string with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewGroup returns a fresh group ID.
func NewGroup() string { return New(PrefixGroup) }

// NewExpense returns a fresh expense ID.
func NewExpense() string { return New(PrefixExpense) }

// NewUser returns a fresh user ID.
func NewUser() string { return New(PrefixUser) }

// Validate checks that s is a well-formed ID carrying the expected prefix.
func Validate(s string, expected Prefix) error {
	if s == "" {
		return fmt.Errorf("id: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return fmt.Errorf("id: parse %q: %w", s, err)
	}
	if Prefix(tid.Prefix()) != expected {
		return fmt.Errorf("id: expected prefix %q, got %q", expected, tid.Prefix())
	}
	return nil
}
