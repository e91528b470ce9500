package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// CreateExpenseInput is the payload of CreateExpense.
type CreateExpenseInput struct {
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	TotalAmount  float64              `json:"totalAmount"`
	SplitDetails []models.SplitDetail `json:"splitDetails"`
}

// CreateExpense records an expense paid by the caller.
//
// Validation order: required fields (InvalidInput), group exists (NotFound),
// payer is a member (Forbidden), split lines name members (InvalidInput),
// split sum within tolerance of the total (SplitMismatch). Nothing is written
// until every check passes.
func (e *Engine) CreateExpense(ctx context.Context, caller models.Identity, groupID string, in CreateExpenseInput) (*models.Expense, error) {
	slog.Info("CreateExpense request received", "group_id", groupID, "paid_by", caller.Email, "total", in.TotalAmount)

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, models.NewValidationError("title", "is required")
	case in.TotalAmount <= 0:
		return nil, models.NewValidationError("totalAmount", "must be a positive amount")
	case len(in.SplitDetails) == 0:
		return nil, models.NewValidationError("splitDetails", "at least one split line is required")
	}

	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	paidBy := models.NormalizeEmail(caller.Email)
	if !group.IsMember(paidBy) {
		return nil, fmt.Errorf("%w: not a member of this group", models.ErrForbidden)
	}

	splits, err := calculator.NormalizeSplits(in.SplitDetails, group.MembersEmail)
	if err != nil {
		return nil, err
	}
	if err := calculator.CheckSplitSum(in.TotalAmount, splits); err != nil {
		return nil, err
	}

	expense := &models.Expense{
		ID:           id.NewExpense(),
		GroupID:      group.ID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		TotalAmount:  in.TotalAmount,
		PaidBy:       paidBy,
		SplitDetails: splits,
		IsSettled:    false,
		CreatedAt:    e.now().Unix(),
	}

	err = e.store.CreateExpense(ctx, expense)
	e.metrics.Operation("createExpense", err)
	if err != nil {
		slog.Error("Failed to create expense", "error", err, "group_id", group.ID)
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	slog.Info("Expense created", "expense_id", expense.ID, "group_id", group.ID)
	return expense, nil
}

// ListExpenses returns one page of a group's expenses. Members only.
func (e *Engine) ListExpenses(ctx context.Context, caller models.Identity, groupID string, page models.PageRequest) ([]*models.Expense, models.Pagination, error) {
	page = page.WithDefaults()
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if !group.IsMember(caller.Email) {
		return nil, models.Pagination{}, fmt.Errorf("%w: not a member of this group", models.ErrForbidden)
	}

	expenses, total, err := e.store.ListExpenses(ctx, storage.ExpenseFilter{GroupID: groupID, Page: &page})
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to list expenses: %w", err)
	}
	return expenses, models.NewPagination(page, total), nil
}

// UpdateExpense applies the non-nil fields of upd. Only the payer may update.
// The split sum is checked against the total only when both are supplied.
func (e *Engine) UpdateExpense(ctx context.Context, caller models.Identity, expenseID string, upd models.ExpenseUpdate) (*models.Expense, error) {
	slog.Info("UpdateExpense request received", "expense_id", expenseID, "user", caller.Email)

	if upd.Title == nil && upd.Description == nil && upd.TotalAmount == nil && upd.SplitDetails == nil {
		return nil, models.NewValidationError("expense", "nothing to update")
	}
	expense, err := e.getOwnExpense(ctx, caller, expenseID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, models.NewValidationError("title", "must not be empty")
		}
		expense.Title = title
	}
	if upd.Description != nil {
		expense.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.TotalAmount != nil {
		if *upd.TotalAmount <= 0 {
			return nil, models.NewValidationError("totalAmount", "must be a positive amount")
		}
		expense.TotalAmount = *upd.TotalAmount
	}
	if upd.SplitDetails != nil {
		group, err := e.getGroup(ctx, expense.GroupID)
		if err != nil {
			return nil, err
		}
		splits, err := calculator.NormalizeSplits(upd.SplitDetails, group.MembersEmail)
		if err != nil {
			return nil, err
		}
		if upd.TotalAmount != nil {
			if err := calculator.CheckSplitSum(expense.TotalAmount, splits); err != nil {
				return nil, err
			}
		}
		expense.SplitDetails = splits
	}

	err = e.store.UpdateExpense(ctx, expense)
	e.metrics.Operation("updateExpense", err)
	if err != nil {
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes an expense. Only the payer may delete.
func (e *Engine) DeleteExpense(ctx context.Context, caller models.Identity, expenseID string) error {
	slog.Info("DeleteExpense request received", "expense_id", expenseID, "user", caller.Email)

	if _, err := e.getOwnExpense(ctx, caller, expenseID); err != nil {
		return err
	}
	err := e.store.DeleteExpense(ctx, expenseID)
	e.metrics.Operation("deleteExpense", err)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

func (e *Engine) getOwnExpense(ctx context.Context, caller models.Identity, expenseID string) (*models.Expense, error) {
	if strings.TrimSpace(expenseID) == "" {
		return nil, models.NewValidationError("expenseId", "is required")
	}
	expense, err := e.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	if expense.PaidBy != models.NormalizeEmail(caller.Email) {
		return nil, fmt.Errorf("%w: only the creator can modify this expense", models.ErrForbidden)
	}
	return expense, nil
}
