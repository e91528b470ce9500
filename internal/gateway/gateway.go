// Package gateway is the single entry point transports call. Every operation
// checks the caller's role against the permission table before anything
// downstream runs; a denial has no side effects.
package gateway

import (
	"context"
	"log/slog"

	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/authz"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
)

// Ledger is the group and expense engine.
type Ledger interface {
	CreateGroup(ctx context.Context, caller models.Identity, in ledger.CreateGroupInput) (*models.Group, error)
	UpdateGroup(ctx context.Context, caller models.Identity, groupID string, in ledger.UpdateGroupInput) (*models.Group, error)
	AddMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error)
	RemoveMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error)
	ListMyGroups(ctx context.Context, caller models.Identity, in ledger.ListGroupsInput) ([]*models.Group, models.Pagination, error)
	AuditLog(ctx context.Context, caller models.Identity, groupID string) ([]models.AuditEntry, error)
	CreateExpense(ctx context.Context, caller models.Identity, groupID string, in ledger.CreateExpenseInput) (*models.Expense, error)
	ListExpenses(ctx context.Context, caller models.Identity, groupID string, page models.PageRequest) ([]*models.Expense, models.Pagination, error)
	UpdateExpense(ctx context.Context, caller models.Identity, expenseID string, upd models.ExpenseUpdate) (*models.Expense, error)
	DeleteExpense(ctx context.Context, caller models.Identity, expenseID string) error
	GroupSummary(ctx context.Context, caller models.Identity, groupID string) (*ledger.Summary, error)
	SettleGroup(ctx context.Context, caller models.Identity, groupID string) (*ledger.SettleResult, error)
}

// Accounts provisions users and reads profiles.
type Accounts interface {
	Provision(ctx context.Context, admin models.Identity, in auth.ProvisionInput) (*auth.Provisioned, error)
	Profile(ctx context.Context, userID string) (*models.User, error)
}

// Credits redeems purchased credits.
type Credits interface {
	Redeem(ctx context.Context, purchase *models.Purchase) (int, error)
}

// PurchaseVerifier checks a payment callback signature.
type PurchaseVerifier interface {
	Verify(orderID, paymentID string, credits int, signature string) error
}

// Gateway authorizes and dispatches every operation.
type Gateway struct {
	table     authz.Table
	ledger    Ledger
	accounts  Accounts
	credits   Credits
	purchases PurchaseVerifier
	metrics   *metrics.Metrics
}

// Config wires a Gateway.
type Config struct {
	Table     authz.Table
	Ledger    Ledger
	Accounts  Accounts
	Credits   Credits
	Purchases PurchaseVerifier
	Metrics   *metrics.Metrics
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	return &Gateway{
		table:     cfg.Table,
		ledger:    cfg.Ledger,
		accounts:  cfg.Accounts,
		credits:   cfg.Credits,
		purchases: cfg.Purchases,
		metrics:   cfg.Metrics,
	}
}

// Authorize reports whether the caller's role holds permission.
func (g *Gateway) Authorize(caller models.Identity, permission authz.Permission) error {
	err := g.table.Authorize(caller.Role, permission)
	g.metrics.AuthzDecision(string(permission), err == nil)
	if err != nil {
		slog.Warn("Permission denied", "user_id", caller.ID, "role", caller.Role, "permission", permission)
	}
	return err
}

func (g *Gateway) CreateGroup(ctx context.Context, caller models.Identity, in ledger.CreateGroupInput) (*models.Group, error) {
	if err := g.Authorize(caller, authz.GroupCreate); err != nil {
		return nil, err
	}
	return g.ledger.CreateGroup(ctx, caller, in)
}

func (g *Gateway) UpdateGroup(ctx context.Context, caller models.Identity, groupID string, in ledger.UpdateGroupInput) (*models.Group, error) {
	if err := g.Authorize(caller, authz.GroupUpdate); err != nil {
		return nil, err
	}
	return g.ledger.UpdateGroup(ctx, caller, groupID, in)
}

func (g *Gateway) AddMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error) {
	if err := g.Authorize(caller, authz.GroupMembersAdd); err != nil {
		return nil, err
	}
	return g.ledger.AddMembers(ctx, caller, groupID, emails)
}

func (g *Gateway) RemoveMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error) {
	if err := g.Authorize(caller, authz.GroupMembersRemove); err != nil {
		return nil, err
	}
	return g.ledger.RemoveMembers(ctx, caller, groupID, emails)
}

func (g *Gateway) ListMyGroups(ctx context.Context, caller models.Identity, in ledger.ListGroupsInput) ([]*models.Group, models.Pagination, error) {
	if err := g.Authorize(caller, authz.GroupView); err != nil {
		return nil, models.Pagination{}, err
	}
	return g.ledger.ListMyGroups(ctx, caller, in)
}

func (g *Gateway) AuditLog(ctx context.Context, caller models.Identity, groupID string) ([]models.AuditEntry, error) {
	if err := g.Authorize(caller, authz.GroupView); err != nil {
		return nil, err
	}
	return g.ledger.AuditLog(ctx, caller, groupID)
}

func (g *Gateway) CreateExpense(ctx context.Context, caller models.Identity, groupID string, in ledger.CreateExpenseInput) (*models.Expense, error) {
	if err := g.Authorize(caller, authz.ExpenseCreate); err != nil {
		return nil, err
	}
	return g.ledger.CreateExpense(ctx, caller, groupID, in)
}

func (g *Gateway) ListExpenses(ctx context.Context, caller models.Identity, groupID string, page models.PageRequest) ([]*models.Expense, models.Pagination, error) {
	if err := g.Authorize(caller, authz.ExpenseView); err != nil {
		return nil, models.Pagination{}, err
	}
	return g.ledger.ListExpenses(ctx, caller, groupID, page)
}

func (g *Gateway) UpdateExpense(ctx context.Context, caller models.Identity, expenseID string, upd models.ExpenseUpdate) (*models.Expense, error) {
	if err := g.Authorize(caller, authz.ExpenseUpdate); err != nil {
		return nil, err
	}
	return g.ledger.UpdateExpense(ctx, caller, expenseID, upd)
}

func (g *Gateway) DeleteExpense(ctx context.Context, caller models.Identity, expenseID string) error {
	if err := g.Authorize(caller, authz.ExpenseDelete); err != nil {
		return err
	}
	return g.ledger.DeleteExpense(ctx, caller, expenseID)
}

// GroupSummary returns net balances, plus planned transfers when a planner is installed.
func (g *Gateway) GroupSummary(ctx context.Context, caller models.Identity, groupID string) (*ledger.Summary, error) {
	if err := g.Authorize(caller, authz.ExpenseView); err != nil {
		return nil, err
	}
	return g.ledger.GroupSummary(ctx, caller, groupID)
}

func (g *Gateway) SettleGroup(ctx context.Context, caller models.Identity, groupID string) (*ledger.SettleResult, error) {
	if err := g.Authorize(caller, authz.ExpenseSettle); err != nil {
		return nil, err
	}
	return g.ledger.SettleGroup(ctx, caller, groupID)
}

func (g *Gateway) ProvisionUser(ctx context.Context, caller models.Identity, in auth.ProvisionInput) (*auth.Provisioned, error) {
	if err := g.Authorize(caller, authz.UserCreate); err != nil {
		return nil, err
	}
	return g.accounts.Provision(ctx, caller, in)
}

func (g *Gateway) Profile(ctx context.Context, caller models.Identity) (*models.User, error) {
	if err := g.Authorize(caller, authz.UserView); err != nil {
		return nil, err
	}
	return g.accounts.Profile(ctx, caller.ID)
}

// PurchaseInput is the payment collaborator's completion callback.
type PurchaseInput struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Credits   int    `json:"credits"`
}

// VerifyPurchase grants the purchased credits to the caller once the
// callback signature checks out. Each order is granted at most once.
// Returns the new balance.
func (g *Gateway) VerifyPurchase(ctx context.Context, caller models.Identity, in PurchaseInput) (int, error) {
	if err := g.Authorize(caller, authz.PaymentCreate); err != nil {
		return 0, err
	}
	slog.Info("VerifyPurchase request received", "user_id", caller.ID, "order_id", in.OrderID, "credits", in.Credits)

	if err := g.purchases.Verify(in.OrderID, in.PaymentID, in.Credits, in.Signature); err != nil {
		g.metrics.Operation("verifyPurchase", err)
		return 0, err
	}
	total, err := g.credits.Redeem(ctx, &models.Purchase{
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		UserID:    caller.ID,
		Credits:   in.Credits,
	})
	g.metrics.Operation("verifyPurchase", err)
	if err != nil {
		return 0, err
	}
	g.metrics.CreditsGranted(in.Credits)
	return total, nil
}
