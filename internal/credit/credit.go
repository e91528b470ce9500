// Package credit manages the per-user group-creation quota.
//
// The decrement is delegated to the storage layer as a single conditional
// update (credits = credits - 1 WHERE credits > 0), so concurrent requests
// from the same user can never drive the balance negative.
package credit

import (
	"context"
	"fmt"

	"github.com/mmynk/groupledger/internal/models"
)

// Store is the persistence the account needs. Implementations must make
// DecrementCredits atomic and return models.ErrInsufficientCredits when the
// balance is already zero, models.ErrNotFound when the user does not exist.
type Store interface {
	DecrementCredits(ctx context.Context, userID string) (int, error)
	IncrementCredits(ctx context.Context, userID string, amount int) (int, error)
	RedeemPurchase(ctx context.Context, purchase *models.Purchase) (int, error)
}

// Account consumes and grants credits.
type Account struct {
	store Store
}

// NewAccount creates an Account backed by store.
func NewAccount(store Store) *Account {
	return &Account{store: store}
}

// Consume spends one credit for a group creation and returns the remaining balance.
func (a *Account) Consume(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, models.NewValidationError("userId", "is required")
	}
	remaining, err := a.store.DecrementCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	return remaining, nil
}

// Grant adds amount credits after a verified purchase. amount must be positive.
func (a *Account) Grant(ctx context.Context, userID string, amount int) (int, error) {
	if userID == "" {
		return 0, models.NewValidationError("userId", "is required")
	}
	if amount <= 0 {
		return 0, models.NewValidationError("credits", "must be positive")
	}
	total, err := a.store.IncrementCredits(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return total, nil
}

// Redeem grants the credits of a verified purchase. Each order is granted
// once; a replay returns models.ErrConflict.
func (a *Account) Redeem(ctx context.Context, purchase *models.Purchase) (int, error) {
	switch {
	case purchase.UserID == "":
		return 0, models.NewValidationError("userId", "is required")
	case purchase.OrderID == "":
		return 0, models.NewValidationError("orderId", "is required")
	case purchase.Credits <= 0:
		return 0, models.NewValidationError("credits", "must be positive")
	}
	total, err := a.store.RedeemPurchase(ctx, purchase)
	if err != nil {
		return 0, fmt.Errorf("redeem purchase: %w", err)
	}
	return total, nil
}

// Refund returns one credit consumed by a group creation that did not persist.
func (a *Account) Refund(ctx context.Context, userID string) error {
	_, err := a.Grant(ctx, userID, 1)
	return err
}
