package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/mmynk/groupledger/internal/models"
)

var purchaseColumns = []string{"order_id", "payment_id", "user_id", "credits", "created_at"}

// RedeemPurchase records the order and grants its credits in one transaction.
// A second redemption of the same order fails on the order_id primary key.
func (s *PostgresStore) RedeemPurchase(ctx context.Context, purchase *models.Purchase) (int, error) {
	if purchase.CreatedAt == 0 {
		purchase.CreatedAt = time.Now().Unix()
	}

	var total int
	err := s.inTx(ctx, func(q Querier) error {
		_, err := exec(ctx, q, psql.Insert("purchases").
			Columns(purchaseColumns...).
			Values(purchase.OrderID, purchase.PaymentID, purchase.UserID, purchase.Credits, purchase.CreatedAt))
		if err != nil {
			return mapError(err, "order", purchase.OrderID)
		}

		err = queryRow(ctx, q, psql.Update("users").
			Set("credits", squirrel.Expr("credits + ?", purchase.Credits)).
			Where(squirrel.Eq{"id": purchase.UserID}).
			Suffix("RETURNING credits")).Scan(&total)
		if err != nil {
			return mapError(err, "user", purchase.UserID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
