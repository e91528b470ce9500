package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

// RedeemPurchase records the order and grants its credits in one transaction.
// The order_id primary key rejects a second redemption of the same order.
func (s *SQLiteStore) RedeemPurchase(ctx context.Context, purchase *models.Purchase) (int, error) {
	if purchase.CreatedAt == 0 {
		purchase.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO purchases (order_id, payment_id, user_id, credits, created_at) VALUES (?, ?, ?, ?, ?)`,
		purchase.OrderID,
		purchase.PaymentID,
		purchase.UserID,
		purchase.Credits,
		purchase.CreatedAt,
	)
	if err != nil {
		return 0, mapError(err, "order", purchase.OrderID)
	}

	var total int
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ? RETURNING credits`,
		purchase.Credits, purchase.UserID,
	).Scan(&total)
	if err != nil {
		return 0, mapError(err, "user", purchase.UserID)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return total, nil
}
