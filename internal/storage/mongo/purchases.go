package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mmynk/groupledger/internal/models"
)

// RedeemPurchase claims the order by inserting it under its order id, then
// grants the credits. A replayed order fails the insert and grants nothing.
// If the user does not exist the claim is released again.
func (s *MongoStore) RedeemPurchase(ctx context.Context, purchase *models.Purchase) (int, error) {
	if purchase.CreatedAt == 0 {
		purchase.CreatedAt = time.Now().Unix()
	}

	if _, err := s.purchases().InsertOne(ctx, toPurchaseModel(purchase)); err != nil {
		return 0, mapError(err, "order", purchase.OrderID)
	}

	total, err := s.IncrementCredits(ctx, purchase.UserID, purchase.Credits)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			if _, delErr := s.purchases().DeleteOne(ctx, bson.M{"_id": purchase.OrderID}); delErr != nil {
				slog.Error("Failed to release purchase claim", "order_id", purchase.OrderID, "error", delErr)
			}
		}
		return 0, err
	}
	return total, nil
}
