package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

var expenseColumns = []string{
	"id", "group_id", "title", "description", "total_amount", "paid_by", "is_settled", "version", "created_at",
}

// CreateExpense persists a new expense and its split lines.
func (s *PostgresStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	expense.Version = 1

	return s.inTx(ctx, func(q Querier) error {
		_, err := exec(ctx, q, psql.Insert("expenses").
			Columns(expenseColumns...).
			Values(expense.ID, expense.GroupID, expense.Title, expense.Description,
				expense.TotalAmount, expense.PaidBy, expense.IsSettled,
				expense.Version, expense.CreatedAt))
		if err != nil {
			return mapError(err, "expense", expense.ID)
		}
		return insertSplits(ctx, q, expense.ID, expense.SplitDetails)
	})
}

// GetExpense retrieves an expense by ID, including its split lines.
func (s *PostgresStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(queryRow(ctx, s.db, psql.Select(expenseColumns...).From("expenses").
		Where(squirrel.Eq{"id": expenseID})))
	if err != nil {
		return nil, mapError(err, "expense", expenseID)
	}
	if err := attachSplits(ctx, s.db, []*models.Expense{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateExpense rewrites an expense guarded by the version column.
func (s *PostgresStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	err := s.inTx(ctx, func(q Querier) error {
		n, err := exec(ctx, q, psql.Update("expenses").
			Set("title", expense.Title).
			Set("description", expense.Description).
			Set("total_amount", expense.TotalAmount).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"id": expense.ID, "version": expense.Version}))
		if err != nil {
			return mapError(err, "expense", expense.ID)
		}
		if n == 0 {
			var exists int
			if err := queryRow(ctx, q, psql.Select("1").From("expenses").
				Where(squirrel.Eq{"id": expense.ID})).Scan(&exists); err != nil {
				return mapError(err, "expense", expense.ID)
			}
			return fmt.Errorf("expense %s version %d: %w", expense.ID, expense.Version, models.ErrConflict)
		}

		if _, err := exec(ctx, q, psql.Delete("expense_splits").Where(squirrel.Eq{"expense_id": expense.ID})); err != nil {
			return fmt.Errorf("delete splits: %w", err)
		}
		return insertSplits(ctx, q, expense.ID, expense.SplitDetails)
	})
	if err != nil {
		return err
	}
	expense.Version++
	return nil
}

// DeleteExpense removes an expense; its split lines cascade.
func (s *PostgresStore) DeleteExpense(ctx context.Context, expenseID string) error {
	n, err := exec(ctx, s.db, psql.Delete("expenses").Where(squirrel.Eq{"id": expenseID}))
	if err != nil {
		return mapError(err, "expense", expenseID)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	return nil
}

// ListExpenses returns the expenses of a group.
func (s *PostgresStore) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]*models.Expense, int, error) {
	where := squirrel.Eq{"group_id": filter.GroupID}
	if filter.UnsettledOnly {
		where["is_settled"] = false
	}

	var total int
	if err := queryRow(ctx, s.db, psql.Select("COUNT(*)").From("expenses").Where(where)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	b := psql.Select(expenseColumns...).From("expenses").Where(where)
	if filter.Page != nil {
		order := "DESC"
		if filter.Page.Sort == models.SortOldest {
			order = "ASC"
		}
		b = b.OrderBy("created_at "+order, "id "+order).
			Limit(uint64(filter.Page.Limit)).
			Offset(uint64(filter.Page.Offset()))
	} else {
		b = b.OrderBy("created_at ASC", "id ASC")
	}

	rows, err := query(ctx, s.db, b)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	expenses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Expense, error) {
		return scanExpense(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan expenses: %w", err)
	}

	if err := attachSplits(ctx, s.db, expenses); err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

func scanExpense(row pgx.Row) (*models.Expense, error) {
	e := &models.Expense{}
	err := row.Scan(
		&e.ID, &e.GroupID, &e.Title, &e.Description,
		&e.TotalAmount, &e.PaidBy, &e.IsSettled, &e.Version, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// attachSplits fills SplitDetails for every expense with one query.
func attachSplits(ctx context.Context, q Querier, expenses []*models.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	ids := make([]string, len(expenses))
	byID := make(map[string]*models.Expense, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
		e.SplitDetails = []models.SplitDetail{}
		byID[e.ID] = e
	}

	rows, err := query(ctx, q, psql.Select("expense_id", "member_email", "amount", "is_paid").
		From("expense_splits").
		Where(squirrel.Eq{"expense_id": ids}).
		OrderBy("expense_id", "position"))
	if err != nil {
		return fmt.Errorf("get splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID string
		var sd models.SplitDetail
		if err := rows.Scan(&expenseID, &sd.MemberEmail, &sd.Amount, &sd.IsPaid); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		if e, ok := byID[expenseID]; ok {
			e.SplitDetails = append(e.SplitDetails, sd)
		}
	}
	return rows.Err()
}

func insertSplits(ctx context.Context, q Querier, expenseID string, splits []models.SplitDetail) error {
	if len(splits) == 0 {
		return nil
	}
	b := psql.Insert("expense_splits").Columns("expense_id", "position", "member_email", "amount", "is_paid")
	for i, sd := range splits {
		b = b.Values(expenseID, i, sd.MemberEmail, sd.Amount, sd.IsPaid)
	}
	if _, err := exec(ctx, q, b); err != nil {
		return mapError(err, "expense split", expenseID)
	}
	return nil
}
