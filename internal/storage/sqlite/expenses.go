package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const expenseColumns = `id, group_id, title, description, total_amount, paid_by, is_settled, version, created_at`

// CreateExpense persists a new expense and its split lines.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	expense.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Title, expense.Description,
		expense.TotalAmount, expense.PaidBy, boolToInt(expense.IsSettled),
		expense.Version, expense.CreatedAt,
	)
	if err != nil {
		return mapError(err, "expense", expense.ID)
	}

	if err := insertSplits(ctx, tx, expense.ID, expense.SplitDetails); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its split lines.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, expenseID))
	if err != nil {
		return nil, mapError(err, "expense", expenseID)
	}
	if e.SplitDetails, err = loadSplits(ctx, s.db, expenseID); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateExpense rewrites an expense guarded by the version column.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET title = ?, description = ?, total_amount = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		expense.Title, expense.Description, expense.TotalAmount, expense.ID, expense.Version,
	)
	if err != nil {
		return mapError(err, "expense", expense.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM expenses WHERE id = ?`, expense.ID).Scan(&exists); err != nil {
			return mapError(err, "expense", expense.ID)
		}
		return fmt.Errorf("expense %s version %d: %w", expense.ID, expense.Version, models.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = ?`, expense.ID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense.ID, expense.SplitDetails); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	expense.Version++
	return nil
}

// DeleteExpense removes an expense and its split lines.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	return nil
}

// ListExpenses returns the expenses of a group.
func (s *SQLiteStore) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]*models.Expense, int, error) {
	cond := `group_id = ?`
	args := []any{filter.GroupID}
	if filter.UnsettledOnly {
		cond += ` AND is_settled = 0`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + cond
	if filter.Page != nil {
		order := "DESC"
		if filter.Page.Sort == models.SortOldest {
			order = "ASC"
		}
		query += fmt.Sprintf(` ORDER BY created_at %s, id %s LIMIT ? OFFSET ?`, order, order)
		args = append(args, filter.Page.Limit, filter.Page.Offset())
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}

	expenses := []*models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("error iterating expenses: %w", err)
	}
	rows.Close()

	for _, e := range expenses {
		if e.SplitDetails, err = loadSplits(ctx, s.db, e.ID); err != nil {
			return nil, 0, err
		}
	}
	return expenses, total, nil
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	e := &models.Expense{}
	var settled int
	err := row.Scan(
		&e.ID, &e.GroupID, &e.Title, &e.Description,
		&e.TotalAmount, &e.PaidBy, &settled, &e.Version, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.IsSettled = settled == 1
	return e, nil
}

func loadSplits(ctx context.Context, q querier, expenseID string) ([]models.SplitDetail, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT member_email, amount, is_paid FROM expense_splits WHERE expense_id = ? ORDER BY position`,
		expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	splits := []models.SplitDetail{}
	for rows.Next() {
		var sd models.SplitDetail
		var paid int
		if err := rows.Scan(&sd.MemberEmail, &sd.Amount, &paid); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		sd.IsPaid = paid == 1
		splits = append(splits, sd)
	}
	return splits, rows.Err()
}

func insertSplits(ctx context.Context, q querier, expenseID string, splits []models.SplitDetail) error {
	for i, sd := range splits {
		_, err := q.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, position, member_email, amount, is_paid) VALUES (?, ?, ?, ?, ?)`,
			expenseID, i, sd.MemberEmail, sd.Amount, boolToInt(sd.IsPaid),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}
