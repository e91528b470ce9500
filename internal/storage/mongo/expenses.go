package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// CreateExpense inserts a new expense with version 1.
func (s *MongoStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	expense.Version = 1
	if _, err := s.expenses().InsertOne(ctx, toExpenseModel(expense)); err != nil {
		return mapError(err, "expense", expense.ID)
	}
	return nil
}

// GetExpense retrieves an expense by ID.
func (s *MongoStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var m expenseModel
	if err := s.expenses().FindOne(ctx, bson.M{"_id": expenseID}).Decode(&m); err != nil {
		return nil, mapError(err, "expense", expenseID)
	}
	return fromExpenseModel(&m), nil
}

// UpdateExpense rewrites an expense guarded by the version field.
func (s *MongoStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	res, err := s.expenses().UpdateOne(ctx,
		bson.M{"_id": expense.ID, "version": expense.Version},
		bson.M{
			"$set": bson.M{
				"title":        expense.Title,
				"description":  expense.Description,
				"total_amount": expense.TotalAmount,
				"splits":       toSplitModels(expense.SplitDetails),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return mapError(err, "expense", expense.ID)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetExpense(ctx, expense.ID); err != nil {
			return err
		}
		return fmt.Errorf("expense %s version %d: %w", expense.ID, expense.Version, models.ErrConflict)
	}
	expense.Version++
	return nil
}

// DeleteExpense removes an expense.
func (s *MongoStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.expenses().DeleteOne(ctx, bson.M{"_id": expenseID})
	if err != nil {
		return mapError(err, "expense", expenseID)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	return nil
}

// ListExpenses returns the expenses of a group.
func (s *MongoStore) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]*models.Expense, int, error) {
	q := bson.M{"group_id": filter.GroupID}
	if filter.UnsettledOnly {
		q["is_settled"] = false
	}

	total, err := s.expenses().CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	opts := options.Find().SetSort(sortFor(filter.Page))
	if filter.Page != nil {
		opts = opts.SetSkip(int64(filter.Page.Offset())).SetLimit(int64(filter.Page.Limit))
	}
	cur, err := s.expenses().Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	var ms []expenseModel
	if err := cur.All(ctx, &ms); err != nil {
		return nil, 0, fmt.Errorf("decode expenses: %w", err)
	}

	expenses := make([]*models.Expense, len(ms))
	for i := range ms {
		expenses[i] = fromExpenseModel(&ms[i])
	}
	return expenses, int(total), nil
}
