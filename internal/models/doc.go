// Package models defines the core domain models for the group ledger.
//
// # Models
//
//   - User: an account holding a role and a credit quota
//   - Group: a set of members (by email) sharing expenses, owned by an admin
//   - Expense: one cost paid by a member and split across members
//   - AuditEntry: one immutable line of a group's audit trail
//   - Identity: the already-authenticated caller of an operation
//
// Relationships are expressed with ID and email strings, never pointers.
// Balances are derived from expenses and are not persisted.
//
// Errors returned by every layer are classified with the sentinels in
// errors.go; transports map them to status codes.
package models
