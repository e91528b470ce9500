package service

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/authz"
	"github.com/mmynk/groupledger/internal/credit"
	"github.com/mmynk/groupledger/internal/gateway"
	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

type testEnv struct {
	url   string
	store *sqlite.SQLiteStore
	jwt   *auth.JWTManager
}

// setupTestServer serves the LedgerService over a temp sqlite database.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "service-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create store: %v", err)
	}

	table := authz.Default()
	m := metrics.New()
	credits := credit.NewAccount(store)
	engine := ledger.NewEngine(store, credits, store.AuditTrail())
	gw := gateway.New(gateway.Config{
		Table:     table,
		Ledger:    engine,
		Accounts:  auth.NewProvisioner(store, table, 1),
		Credits:   credits,
		Purchases: credit.NewPurchaseVerifier(""),
		Metrics:   m,
	})
	jwtManager := auth.NewJWTManager("0123456789abcdef0123456789abcdef", "", time.Hour)

	path, handler := NewLedgerService(gw, 100).Handler(middleware.ConnectInterceptors(jwtManager, m)...)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		store.Close()
		os.RemoveAll(tempDir)
	})
	return &testEnv{url: server.URL, store: store, jwt: jwtManager}
}

func (e *testEnv) token(t *testing.T, email, role string, credits int) string {
	t.Helper()
	u := &models.User{ID: id.NewUser(), Email: email, Role: role, Credits: credits}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	token, err := e.jwt.Generate(u)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return token
}

func call[Req, Res any](t *testing.T, e *testEnv, procedure, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, e.url+procedure, connect.WithCodec(jsonCodec{}))
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestLedgerService_Unauthenticated(t *testing.T) {
	e := setupTestServer(t)

	_, err := call[Empty, models.User](t, e, GetProfileProcedure, "", &Empty{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Fatalf("got %v, want Unauthenticated", err)
	}
}

func TestLedgerService_EndToEnd(t *testing.T) {
	e := setupTestServer(t)
	admin := e.token(t, "a@x.com", models.RoleAdmin, 1)
	viewer := e.token(t, "c@x.com", models.RoleViewer, 0)

	created, err := call[ledger.CreateGroupInput, CreateGroupResponse](t, e, CreateGroupProcedure, admin, &ledger.CreateGroupInput{
		Name:         "Trip",
		MembersEmail: []string{"b@x.com", "c@x.com"},
	})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if created.GroupID == "" || len(created.Group.MembersEmail) != 3 {
		t.Fatalf("got %+v", created)
	}

	_, err = call[ledger.CreateGroupInput, CreateGroupResponse](t, e, CreateGroupProcedure, admin, &ledger.CreateGroupInput{Name: "Again"})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("got %v, want FailedPrecondition", err)
	}

	_, err = call[CreateExpenseRequest, models.Expense](t, e, CreateExpenseProcedure, admin, &CreateExpenseRequest{
		GroupID: created.GroupID,
		CreateExpenseInput: ledger.CreateExpenseInput{
			Title:       "Dinner",
			TotalAmount: 90,
			SplitDetails: []models.SplitDetail{
				{MemberEmail: "a@x.com", Amount: 30},
				{MemberEmail: "b@x.com", Amount: 30},
				{MemberEmail: "c@x.com", Amount: 29.98},
			},
		},
	})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("split mismatch: got %v, want FailedPrecondition", err)
	}

	expense, err := call[CreateExpenseRequest, models.Expense](t, e, CreateExpenseProcedure, admin, &CreateExpenseRequest{
		GroupID: created.GroupID,
		CreateExpenseInput: ledger.CreateExpenseInput{
			Title:       "Dinner",
			TotalAmount: 90,
			SplitDetails: []models.SplitDetail{
				{MemberEmail: "a@x.com", Amount: 30},
				{MemberEmail: "b@x.com", Amount: 30},
				{MemberEmail: "c@x.com", Amount: 30},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	summary, err := call[GroupRequest, ledger.Summary](t, e, GetGroupSummaryProcedure, viewer, &GroupRequest{GroupID: created.GroupID})
	if err != nil {
		t.Fatalf("GetGroupSummary failed: %v", err)
	}
	if math.Abs(summary.Balances["a@x.com"]-60) > 0.01 || math.Abs(summary.Balances["c@x.com"]+30) > 0.01 {
		t.Errorf("got %v", summary.Balances)
	}

	_, err = call[GroupRequest, ledger.SettleResult](t, e, SettleGroupProcedure, viewer, &GroupRequest{GroupID: created.GroupID})
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("viewer settle: got %v, want PermissionDenied", err)
	}

	settled, err := call[GroupRequest, ledger.SettleResult](t, e, SettleGroupProcedure, admin, &GroupRequest{GroupID: created.GroupID})
	if err != nil {
		t.Fatalf("SettleGroup failed: %v", err)
	}
	if settled.SettledCount != 1 {
		t.Errorf("got %+v", settled)
	}

	list, err := call[ListGroupExpensesRequest, ListExpensesResponse](t, e, ListGroupExpensesProcedure, admin, &ListGroupExpensesRequest{GroupID: created.GroupID})
	if err != nil {
		t.Fatalf("ListGroupExpenses failed: %v", err)
	}
	if len(list.Expenses) != 1 || !list.Expenses[0].IsSettled || list.Expenses[0].ID != expense.ID {
		t.Errorf("got %+v", list.Expenses)
	}

	_, err = call[ListGroupExpensesRequest, ListExpensesResponse](t, e, ListGroupExpensesProcedure, admin, &ListGroupExpensesRequest{
		GroupID: created.GroupID, PageParams: PageParams{Limit: 500},
	})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("oversized page: got %v, want InvalidArgument", err)
	}

	audit, err := call[GroupRequest, AuditLogResponse](t, e, GetAuditLogProcedure, admin, &GroupRequest{GroupID: created.GroupID})
	if err != nil {
		t.Fatalf("GetAuditLog failed: %v", err)
	}
	if n := len(audit.AuditLog); n != 2 || audit.AuditLog[n-1].Message != "Group settled by a@x.com" {
		t.Errorf("got %+v", audit.AuditLog)
	}

	deleted, err := call[ExpenseRequest, DeleteExpenseResponse](t, e, DeleteExpenseProcedure, admin, &ExpenseRequest{ExpenseID: expense.ID})
	if err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if deleted.Deleted != expense.ID {
		t.Errorf("got %+v", deleted)
	}
	_, err = call[ExpenseRequest, DeleteExpenseResponse](t, e, DeleteExpenseProcedure, admin, &ExpenseRequest{ExpenseID: expense.ID})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Fatalf("second delete: got %v, want NotFound", err)
	}
}

func TestLedgerService_Users(t *testing.T) {
	e := setupTestServer(t)
	admin := e.token(t, "a@x.com", models.RoleAdmin, 2)

	out, err := call[auth.ProvisionInput, auth.Provisioned](t, e, ProvisionUserProcedure, admin, &auth.ProvisionInput{Email: "m@x.com", Role: "manager"})
	if err != nil {
		t.Fatalf("ProvisionUser failed: %v", err)
	}
	if out.User.Role != "manager" || out.TemporaryPassword == "" {
		t.Errorf("got %+v", out)
	}
	_, err = call[auth.ProvisionInput, auth.Provisioned](t, e, ProvisionUserProcedure, admin, &auth.ProvisionInput{Email: "m@x.com", Role: "manager"})
	if connect.CodeOf(err) != connect.CodeAlreadyExists {
		t.Fatalf("duplicate: got %v, want AlreadyExists", err)
	}

	me, err := call[Empty, models.User](t, e, GetProfileProcedure, admin, &Empty{})
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if me.Credits != 2 {
		t.Errorf("credits: got %d, want 2", me.Credits)
	}

	// Purchases are disabled without a webhook secret.
	_, err = call[gateway.PurchaseInput, CreditsResponse](t, e, VerifyPurchaseProcedure, admin, &gateway.PurchaseInput{
		OrderID: "o", PaymentID: "p", Signature: "s", Credits: 1,
	})
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Fatalf("got %v, want PermissionDenied", err)
	}
}
