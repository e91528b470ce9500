// Package rest serves the ledger over JSON HTTP using chi.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/gateway"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
)

// service is the subset of the gateway the handlers call.
type service interface {
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

// PageLimits bounds the page size accepted in query strings.
type PageLimits struct {
	Default int
	Max     int
}

// Handler serves the ledger REST endpoints.
type Handler struct {
	svc    service
	limits PageLimits
	log    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc service, limits PageLimits, logger *slog.Logger) *Handler {
	if limits.Default <= 0 {
		limits.Default = models.DefaultPageLimit
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	return &Handler{svc: svc, limits: limits, log: logger.With("handler", "rest")}
}

// Routes mounts every ledger endpoint on r. r must already carry the
// authentication middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Post("/", h.CreateGroup)
		r.Get("/", h.ListMyGroups)
		r.Route("/{groupId}", func(r chi.Router) {
			r.Put("/", h.UpdateGroup)
			r.Put("/members/add", h.AddMembers)
			r.Put("/members/remove", h.RemoveMembers)
			r.Get("/audit", h.AuditLog)
			r.Post("/expenses", h.CreateExpense)
			r.Get("/expenses", h.ListExpenses)
			r.Get("/summary", h.GroupSummary)
			r.Post("/settle", h.SettleGroup)
		})
	})
	r.Route("/expenses/{expenseId}", func(r chi.Router) {
		r.Put("/", h.UpdateExpense)
		r.Delete("/", h.DeleteExpense)
	})
	r.Post("/users", h.ProvisionUser)
	r.Get("/users/me", h.Profile)
	r.Post("/payments/verify", h.VerifyPurchase)
}

type membersRequest struct {
	MembersEmail []string `json:"membersEmail"`
}

type createGroupResponse struct {
	GroupID string        `json:"groupId"`
	Group   *models.Group `json:"group"`
}

type listGroupsResponse struct {
	Groups     []*models.Group   `json:"groups"`
	Pagination models.Pagination `json:"pagination"`
}

type listExpensesResponse struct {
	Expenses   []*models.Expense `json:"expenses"`
	Pagination models.Pagination `json:"pagination"`
}

// CreateGroup handles POST /api/groups.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateGroupInput
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.svc.CreateGroup(r.Context(), caller(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createGroupResponse{GroupID: group.ID, Group: group})
}

// UpdateGroup handles PUT /api/groups/{groupId}.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req ledger.UpdateGroupInput
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.svc.UpdateGroup(r.Context(), caller(r), chi.URLParam(r, "groupId"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// AddMembers handles PUT /api/groups/{groupId}/members/add.
func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.svc.AddMembers(r.Context(), caller(r), chi.URLParam(r, "groupId"), req.MembersEmail)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// RemoveMembers handles PUT /api/groups/{groupId}/members/remove.
func (h *Handler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.svc.RemoveMembers(r.Context(), caller(r), chi.URLParam(r, "groupId"), req.MembersEmail)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// ListMyGroups handles GET /api/groups?page&limit&sort&isPaid.
func (h *Handler) ListMyGroups(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageFromQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	in := ledger.ListGroupsInput{Page: page}
	if raw := r.URL.Query().Get("isPaid"); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			h.handleError(w, r, models.NewValidationError("isPaid", "must be true or false"))
			return
		}
		in.IsPaid = &paid
	}

	groups, pagination, err := h.svc.ListMyGroups(r.Context(), caller(r), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listGroupsResponse{Groups: groups, Pagination: pagination})
}

// AuditLog handles GET /api/groups/{groupId}/audit.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.AuditLog(r.Context(), caller(r), chi.URLParam(r, "groupId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auditLog": entries})
}

// CreateExpense handles POST /api/groups/{groupId}/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateExpenseInput
	if !h.decode(w, r, &req) {
		return
	}
	expense, err := h.svc.CreateExpense(r.Context(), caller(r), chi.URLParam(r, "groupId"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// ListExpenses handles GET /api/groups/{groupId}/expenses.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageFromQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	expenses, pagination, err := h.svc.ListExpenses(r.Context(), caller(r), chi.URLParam(r, "groupId"), page)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []*models.Expense{}
	}
	writeJSON(w, http.StatusOK, listExpensesResponse{Expenses: expenses, Pagination: pagination})
}

// GroupSummary handles GET /api/groups/{groupId}/summary.
func (h *Handler) GroupSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GroupSummary(r.Context(), caller(r), chi.URLParam(r, "groupId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SettleGroup handles POST /api/groups/{groupId}/settle.
func (h *Handler) SettleGroup(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.SettleGroup(r.Context(), caller(r), chi.URLParam(r, "groupId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateExpense handles PUT /api/expenses/{expenseId}.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req models.ExpenseUpdate
	if !h.decode(w, r, &req) {
		return
	}
	expense, err := h.svc.UpdateExpense(r.Context(), caller(r), chi.URLParam(r, "expenseId"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// DeleteExpense handles DELETE /api/expenses/{expenseId}.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := chi.URLParam(r, "expenseId")
	if err := h.svc.DeleteExpense(r.Context(), caller(r), expenseID); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": expenseID})
}

// ProvisionUser handles POST /api/users.
func (h *Handler) ProvisionUser(w http.ResponseWriter, r *http.Request) {
	var req auth.ProvisionInput
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.svc.ProvisionUser(r.Context(), caller(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Profile handles GET /api/users/me.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Profile(r.Context(), caller(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// VerifyPurchase handles POST /api/payments/verify.
func (h *Handler) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	var req gateway.PurchaseInput
	if !h.decode(w, r, &req) {
		return
	}
	credits, err := h.svc.VerifyPurchase(r.Context(), caller(r), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": credits})
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func caller(r *http.Request) models.Identity {
	id, _ := middleware.GetIdentity(r.Context())
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) pageFromQuery(r *http.Request) (models.PageRequest, error) {
	q := r.URL.Query()
	page := models.PageRequest{Page: 1, Limit: h.limits.Default, Sort: models.SortNewest}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, models.NewValidationError("page", "must be a positive integer")
		}
		page.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.limits.Max {
			return page, models.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", h.limits.Max))
		}
		page.Limit = n
	}
	if raw := strings.ToLower(q.Get("sort")); raw != "" {
		if raw != models.SortNewest && raw != models.SortOldest {
			return page, models.NewValidationError("sort", "must be newest or oldest")
		}
		page.Sort = raw
	}
	return page, nil
}
