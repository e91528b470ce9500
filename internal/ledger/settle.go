package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Summary is the balance view of a group.
type Summary struct {
	GroupID   string                `json:"groupId"`
	GroupName string                `json:"groupName"`
	Balances  calculator.Balances   `json:"balances"`
	Transfers []calculator.Transfer `json:"transfers,omitempty"`
}

// SettleResult reports what a settlement changed.
type SettleResult struct {
	SettledCount  int                  `json:"settledCount"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
}

// ComputeBalances derives net balances from the group's unsettled expenses.
func (e *Engine) ComputeBalances(ctx context.Context, groupID string) (calculator.Balances, error) {
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return e.balances(ctx, group)
}

func (e *Engine) balances(ctx context.Context, group *models.Group) (calculator.Balances, error) {
	expenses, _, err := e.store.ListExpenses(ctx, storage.ExpenseFilter{GroupID: group.ID, UnsettledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return calculator.ComputeBalances(group.MembersEmail, expenses), nil
}

// GroupSummary returns balances and the group name. Members only.
func (e *Engine) GroupSummary(ctx context.Context, caller models.Identity, groupID string) (*Summary, error) {
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(caller.Email) {
		return nil, fmt.Errorf("%w: not a member of this group", models.ErrForbidden)
	}

	balances, err := e.balances(ctx, group)
	if err != nil {
		return nil, err
	}
	summary := &Summary{GroupID: group.ID, GroupName: group.Name, Balances: balances}
	if e.planner != nil {
		summary.Transfers = e.planner.Plan(balances)
	}
	return summary, nil
}

// SettleGroup closes out every unsettled expense of the group. Admin only.
//
// The flip is a single conditional update scoped to unsettled rows; an
// expense created while the settlement runs is either included or left
// unsettled for the next cycle, never half-applied. Repeating the call with
// no new expenses changes nothing.
func (e *Engine) SettleGroup(ctx context.Context, caller models.Identity, groupID string) (*SettleResult, error) {
	slog.Info("SettleGroup request received", "group_id", groupID, "user", caller.Email)

	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(caller.Email) {
		return nil, fmt.Errorf("%w: only the group admin can settle", models.ErrForbidden)
	}

	settled, updated, err := e.store.SettleGroup(ctx, groupID, e.now().Unix())
	e.metrics.Operation("settleGroup", err)
	if err != nil {
		slog.Error("Failed to settle group", "error", err, "group_id", groupID)
		return nil, fmt.Errorf("failed to settle group: %w", err)
	}
	e.metrics.ExpensesSettled(settled)

	e.record(ctx, groupID, fmt.Sprintf("Group settled by %s", group.AdminEmail))
	slog.Info("Group settled", "group_id", groupID, "expenses", settled)
	return &SettleResult{SettledCount: settled, PaymentStatus: updated.PaymentStatus}, nil
}
