// Package service exposes the ledger as a Connect service. Requests and
// responses are plain JSON structs; every call is authorized by the gateway.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/gateway"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
)

// ServiceName is the fully qualified Connect service name.
const ServiceName = "groupledger.v1.LedgerService"

// Procedure names.
const (
	CreateGroupProcedure       = "/" + ServiceName + "/CreateGroup"
	UpdateGroupProcedure       = "/" + ServiceName + "/UpdateGroup"
	AddMembersProcedure        = "/" + ServiceName + "/AddMembers"
	RemoveMembersProcedure     = "/" + ServiceName + "/RemoveMembers"
	ListMyGroupsProcedure      = "/" + ServiceName + "/ListMyGroups"
	GetAuditLogProcedure       = "/" + ServiceName + "/GetAuditLog"
	CreateExpenseProcedure     = "/" + ServiceName + "/CreateExpense"
	ListGroupExpensesProcedure = "/" + ServiceName + "/ListGroupExpenses"
	GetGroupSummaryProcedure   = "/" + ServiceName + "/GetGroupSummary"
	SettleGroupProcedure       = "/" + ServiceName + "/SettleGroup"
	UpdateExpenseProcedure     = "/" + ServiceName + "/UpdateExpense"
	DeleteExpenseProcedure     = "/" + ServiceName + "/DeleteExpense"
	ProvisionUserProcedure     = "/" + ServiceName + "/ProvisionUser"
	GetProfileProcedure        = "/" + ServiceName + "/GetProfile"
	VerifyPurchaseProcedure    = "/" + ServiceName + "/VerifyPurchase"
)

// Gateway is the authorized operation set the service dispatches to.
type Gateway interface {
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
	ProvisionUser(ctx context.Context, caller models.Identity, in auth.ProvisionInput) (*auth.Provisioned, error)
	Profile(ctx context.Context, caller models.Identity) (*models.User, error)
	VerifyPurchase(ctx context.Context, caller models.Identity, in gateway.PurchaseInput) (int, error)
}

// LedgerService implements the Connect LedgerService.
type LedgerService struct {
	gw       Gateway
	maxLimit int
}

// NewLedgerService creates a LedgerService. maxLimit caps page sizes.
func NewLedgerService(gw Gateway, maxLimit int) *LedgerService {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &LedgerService{gw: gw, maxLimit: maxLimit}
}

// CreateGroupResponse carries the new group and its id.
type CreateGroupResponse struct {
	GroupID string        `json:"groupId"`
	Group   *models.Group `json:"group"`
}

// UpdateGroupRequest targets one group.
type UpdateGroupRequest struct {
	GroupID string `json:"groupId"`
	ledger.UpdateGroupInput
}

// MembersRequest adds or removes members.
type MembersRequest struct {
	GroupID      string   `json:"groupId"`
	MembersEmail []string `json:"membersEmail"`
}

// GroupRequest names a group.
type GroupRequest struct {
	GroupID string `json:"groupId"`
}

// PageParams selects one page of a listing.
type PageParams struct {
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Sort  string `json:"sort,omitempty"`
}

// ListMyGroupsRequest pages through the caller's groups.
type ListMyGroupsRequest struct {
	PageParams
	IsPaid *bool `json:"isPaid,omitempty"`
}

// ListGroupsResponse is one page of groups.
type ListGroupsResponse struct {
	Groups     []*models.Group   `json:"groups"`
	Pagination models.Pagination `json:"pagination"`
}

// AuditLogResponse is a group's audit trail.
type AuditLogResponse struct {
	AuditLog []models.AuditEntry `json:"auditLog"`
}

// CreateExpenseRequest adds an expense to a group.
type CreateExpenseRequest struct {
	GroupID string `json:"groupId"`
	ledger.CreateExpenseInput
}

// ListGroupExpensesRequest pages through a group's expenses.
type ListGroupExpensesRequest struct {
	GroupID string `json:"groupId"`
	PageParams
}

// ListExpensesResponse is one page of expenses.
type ListExpensesResponse struct {
	Expenses   []*models.Expense `json:"expenses"`
	Pagination models.Pagination `json:"pagination"`
}

// UpdateExpenseRequest changes an expense.
type UpdateExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
	models.ExpenseUpdate
}

// ExpenseRequest names an expense.
type ExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

// DeleteExpenseResponse echoes the removed id.
type DeleteExpenseResponse struct {
	Deleted string `json:"deleted"`
}

// Empty is a request without fields.
type Empty struct{}

// CreditsResponse reports a credit balance.
type CreditsResponse struct {
	Credits int `json:"credits"`
}

// Handler returns the path prefix and handler serving every procedure.
// Interceptors run in the order given, outermost first.
func (s *LedgerService) Handler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(interceptors...),
	}

	mux := http.NewServeMux()
	mux.Handle(CreateGroupProcedure, unary(CreateGroupProcedure, s.createGroup, opts))
	mux.Handle(UpdateGroupProcedure, unary(UpdateGroupProcedure, s.updateGroup, opts))
	mux.Handle(AddMembersProcedure, unary(AddMembersProcedure, s.addMembers, opts))
	mux.Handle(RemoveMembersProcedure, unary(RemoveMembersProcedure, s.removeMembers, opts))
	mux.Handle(ListMyGroupsProcedure, unary(ListMyGroupsProcedure, s.listMyGroups, opts))
	mux.Handle(GetAuditLogProcedure, unary(GetAuditLogProcedure, s.getAuditLog, opts))
	mux.Handle(CreateExpenseProcedure, unary(CreateExpenseProcedure, s.createExpense, opts))
	mux.Handle(ListGroupExpensesProcedure, unary(ListGroupExpensesProcedure, s.listGroupExpenses, opts))
	mux.Handle(GetGroupSummaryProcedure, unary(GetGroupSummaryProcedure, s.getGroupSummary, opts))
	mux.Handle(SettleGroupProcedure, unary(SettleGroupProcedure, s.settleGroup, opts))
	mux.Handle(UpdateExpenseProcedure, unary(UpdateExpenseProcedure, s.updateExpense, opts))
	mux.Handle(DeleteExpenseProcedure, unary(DeleteExpenseProcedure, s.deleteExpense, opts))
	mux.Handle(ProvisionUserProcedure, unary(ProvisionUserProcedure, s.provisionUser, opts))
	mux.Handle(GetProfileProcedure, unary(GetProfileProcedure, s.getProfile, opts))
	mux.Handle(VerifyPurchaseProcedure, unary(VerifyPurchaseProcedure, s.verifyPurchase, opts))
	return "/" + ServiceName + "/", mux
}

// unary adapts an operation to a Connect handler: it resolves the caller
// placed in the context by the auth interceptor and maps domain errors.
func unary[Req, Res any](
	procedure string,
	fn func(ctx context.Context, caller models.Identity, req *Req) (*Res, error),
	opts []connect.HandlerOption,
) http.Handler {
	return connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		caller, ok := middleware.GetIdentity(ctx)
		if !ok {
			return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authorization token required"))
		}
		res, err := fn(ctx, caller, req.Msg)
		if err != nil {
			return nil, toConnectError(procedure, err)
		}
		return connect.NewResponse(res), nil
	}, opts...)
}

func (s *LedgerService) page(p PageParams) (models.PageRequest, error) {
	if p.Page < 0 {
		return models.PageRequest{}, models.NewValidationError("page", "must be a positive integer")
	}
	if p.Limit < 0 || p.Limit > s.maxLimit {
		return models.PageRequest{}, models.NewValidationError("limit", "out of range")
	}
	if p.Sort != "" && p.Sort != models.SortNewest && p.Sort != models.SortOldest {
		return models.PageRequest{}, models.NewValidationError("sort", "must be newest or oldest")
	}
	return models.PageRequest{Page: p.Page, Limit: p.Limit, Sort: p.Sort}.WithDefaults(), nil
}

func (s *LedgerService) createGroup(ctx context.Context, caller models.Identity, req *ledger.CreateGroupInput) (*CreateGroupResponse, error) {
	group, err := s.gw.CreateGroup(ctx, caller, *req)
	if err != nil {
		return nil, err
	}
	slog.Info("Group created", "group_id", group.ID)
	return &CreateGroupResponse{GroupID: group.ID, Group: group}, nil
}

func (s *LedgerService) updateGroup(ctx context.Context, caller models.Identity, req *UpdateGroupRequest) (*models.Group, error) {
	return s.gw.UpdateGroup(ctx, caller, req.GroupID, req.UpdateGroupInput)
}

func (s *LedgerService) addMembers(ctx context.Context, caller models.Identity, req *MembersRequest) (*models.Group, error) {
	return s.gw.AddMembers(ctx, caller, req.GroupID, req.MembersEmail)
}

func (s *LedgerService) removeMembers(ctx context.Context, caller models.Identity, req *MembersRequest) (*models.Group, error) {
	return s.gw.RemoveMembers(ctx, caller, req.GroupID, req.MembersEmail)
}

func (s *LedgerService) listMyGroups(ctx context.Context, caller models.Identity, req *ListMyGroupsRequest) (*ListGroupsResponse, error) {
	page, err := s.page(req.PageParams)
	if err != nil {
		return nil, err
	}
	groups, pagination, err := s.gw.ListMyGroups(ctx, caller, ledger.ListGroupsInput{Page: page, IsPaid: req.IsPaid})
	if err != nil {
		return nil, err
	}
	return &ListGroupsResponse{Groups: groups, Pagination: pagination}, nil
}

func (s *LedgerService) getAuditLog(ctx context.Context, caller models.Identity, req *GroupRequest) (*AuditLogResponse, error) {
	entries, err := s.gw.AuditLog(ctx, caller, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &AuditLogResponse{AuditLog: entries}, nil
}

func (s *LedgerService) createExpense(ctx context.Context, caller models.Identity, req *CreateExpenseRequest) (*models.Expense, error) {
	return s.gw.CreateExpense(ctx, caller, req.GroupID, req.CreateExpenseInput)
}

func (s *LedgerService) listGroupExpenses(ctx context.Context, caller models.Identity, req *ListGroupExpensesRequest) (*ListExpensesResponse, error) {
	page, err := s.page(req.PageParams)
	if err != nil {
		return nil, err
	}
	expenses, pagination, err := s.gw.ListExpenses(ctx, caller, req.GroupID, page)
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []*models.Expense{}
	}
	return &ListExpensesResponse{Expenses: expenses, Pagination: pagination}, nil
}

func (s *LedgerService) getGroupSummary(ctx context.Context, caller models.Identity, req *GroupRequest) (*ledger.Summary, error) {
	return s.gw.GroupSummary(ctx, caller, req.GroupID)
}

func (s *LedgerService) settleGroup(ctx context.Context, caller models.Identity, req *GroupRequest) (*ledger.SettleResult, error) {
	return s.gw.SettleGroup(ctx, caller, req.GroupID)
}

func (s *LedgerService) updateExpense(ctx context.Context, caller models.Identity, req *UpdateExpenseRequest) (*models.Expense, error) {
	return s.gw.UpdateExpense(ctx, caller, req.ExpenseID, req.ExpenseUpdate)
}

func (s *LedgerService) deleteExpense(ctx context.Context, caller models.Identity, req *ExpenseRequest) (*DeleteExpenseResponse, error) {
	if err := s.gw.DeleteExpense(ctx, caller, req.ExpenseID); err != nil {
		return nil, err
	}
	return &DeleteExpenseResponse{Deleted: req.ExpenseID}, nil
}

func (s *LedgerService) provisionUser(ctx context.Context, caller models.Identity, req *auth.ProvisionInput) (*auth.Provisioned, error) {
	return s.gw.ProvisionUser(ctx, caller, *req)
}

func (s *LedgerService) getProfile(ctx context.Context, caller models.Identity, _ *Empty) (*models.User, error) {
	return s.gw.Profile(ctx, caller)
}

func (s *LedgerService) verifyPurchase(ctx context.Context, caller models.Identity, req *gateway.PurchaseInput) (*CreditsResponse, error) {
	credits, err := s.gw.VerifyPurchase(ctx, caller, *req)
	if err != nil {
		return nil, err
	}
	return &CreditsResponse{Credits: credits}, nil
}
