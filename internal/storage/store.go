// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/groupledger/internal/models"
)

// Store defines the persistence the ledger needs.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, MongoDB)
// without changing the service layer.
type Store interface {
	UserStore
	GroupStore
	ExpenseStore
	PurchaseStore

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists accounts and their credit balance.
type UserStore interface {
	// CreateUser inserts a user. Returns models.ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByID returns models.ErrNotFound if absent.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail returns models.ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// DecrementCredits atomically subtracts one credit if the balance is positive
	// and returns the new balance. Returns models.ErrInsufficientCredits when the
	// balance is zero and models.ErrNotFound when the user does not exist.
	DecrementCredits(ctx context.Context, userID string) (int, error)

	// IncrementCredits atomically adds amount and returns the new balance.
	IncrementCredits(ctx context.Context, userID string, amount int) (int, error)
}

// PurchaseStore records redeemed payment orders.
type PurchaseStore interface {
	// RedeemPurchase records the order and adds its credits to the user as one
	// step, returning the new balance. An order that was already redeemed
	// returns models.ErrConflict and grants nothing; an unknown user returns
	// models.ErrNotFound.
	RedeemPurchase(ctx context.Context, purchase *models.Purchase) (int, error)
}

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup inserts a group with version 1.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup returns models.ErrNotFound if absent.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// UpdateGroup writes name and description if the stored version equals
	// group.Version, then increments group.Version. A stale version returns
	// models.ErrConflict.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// AddGroupMembers adds emails to the member set and returns the updated group.
	AddGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error)

	// RemoveGroupMembers removes emails from the member set and returns the
	// updated group. The admin email is never removed.
	RemoveGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error)

	// ListGroups returns one page of groups matching filter and the total match count.
	ListGroups(ctx context.Context, filter GroupFilter) ([]*models.Group, int, error)

	// SettleGroup flips every unsettled expense of the group to settled with a
	// single conditional update and resets the payment status. The payment
	// status is left untouched when nothing was flipped and the group is
	// already paid. Returns the number of expenses settled and the group.
	SettleGroup(ctx context.Context, groupID string, settledAt int64) (int, *models.Group, error)
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	// CreateExpense inserts an expense with version 1.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense returns models.ErrNotFound if absent.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense writes title, description, amount and splits if the stored
	// version equals expense.Version, then increments expense.Version.
	// A stale version returns models.ErrConflict.
	UpdateExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense. Returns models.ErrNotFound if absent.
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpenses returns expenses matching filter and the total match count.
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]*models.Expense, int, error)
}

// GroupFilter selects groups for ListGroups.
type GroupFilter struct {
	// MemberEmail restricts the result to groups containing this member.
	MemberEmail string
	// IsPaid, when set, matches paymentStatus.isPaid.
	IsPaid *bool
	Page   models.PageRequest
}

// ExpenseFilter selects expenses for ListExpenses.
type ExpenseFilter struct {
	GroupID       string
	UnsettledOnly bool
	// Page, when nil, returns every match in creation order.
	Page *models.PageRequest
}
