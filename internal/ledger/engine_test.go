package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/credit"
	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

type testEnv struct {
	engine *Engine
	store  *sqlite.SQLiteStore
	trail  audit.Trail
}

func setupEngine(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ledger-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tempDir)
	})

	trail := store.AuditTrail()
	engine := NewEngine(store, credit.NewAccount(store), trail, opts...)
	return &testEnv{engine: engine, store: store, trail: trail}
}

func (env *testEnv) user(t *testing.T, email string, credits int) models.Identity {
	t.Helper()
	u := &models.User{ID: id.NewUser(), Email: email, Role: models.RoleAdmin, Credits: credits}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return models.Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

func (env *testEnv) group(t *testing.T, admin models.Identity, members ...string) *models.Group {
	t.Helper()
	g, err := env.engine.CreateGroup(context.Background(), admin, CreateGroupInput{Name: "Trip", MembersEmail: members})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return g
}

func split(email string, amount float64) models.SplitDetail {
	return models.SplitDetail{MemberEmail: email, Amount: amount}
}

func assertBalances(t *testing.T, got calculator.Balances, want map[string]float64) {
	t.Helper()
	for m, w := range want {
		if math.Abs(got[m]-w) > 0.01 {
			t.Errorf("%s: got %v, want %v", m, got[m], w)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)

	g := env.group(t, a, "b@x.com", "c@x.com")

	expense, err := env.engine.CreateExpense(ctx, a, g.ID, CreateExpenseInput{
		Title:        "Dinner",
		TotalAmount:  90,
		SplitDetails: []models.SplitDetail{split("a@x.com", 30), split("b@x.com", 30), split("c@x.com", 30)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if expense.IsSettled {
		t.Error("new expense should be unsettled")
	}

	balances, err := env.engine.ComputeBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	assertBalances(t, balances, map[string]float64{"a@x.com": 60, "b@x.com": -30, "c@x.com": -30})

	if _, err := env.engine.SettleGroup(ctx, a, g.ID); err != nil {
		t.Fatalf("SettleGroup failed: %v", err)
	}

	balances, err = env.engine.ComputeBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	assertBalances(t, balances, map[string]float64{"a@x.com": 0, "b@x.com": 0, "c@x.com": 0})

	stored, err := env.store.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if !stored.IsSettled {
		t.Error("expected expense to be settled")
	}

	entries, err := env.engine.AuditLog(ctx, a, g.ID)
	if err != nil {
		t.Fatalf("AuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(entries))
	}
	if entries[1].Message != "Group settled by a@x.com" {
		t.Errorf("got %q", entries[1].Message)
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	outsider := models.Identity{ID: "usr_outsider", Email: "z@x.com", Role: models.RoleAdmin}
	g := env.group(t, a, "b@x.com")

	tests := []struct {
		name    string
		caller  models.Identity
		groupID string
		in      CreateExpenseInput
		wantErr error
	}{
		{
			name:    "missing title",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 10)}},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "missing total",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", SplitDetails: []models.SplitDetail{split("a@x.com", 10)}},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "empty splits",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{}},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "unknown group",
			caller:  a,
			groupID: id.NewGroup(),
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 10)}},
			wantErr: models.ErrNotFound,
		},
		{
			name:    "payer not a member",
			caller:  outsider,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 10)}},
			wantErr: models.ErrForbidden,
		},
		{
			name:    "split member outside group",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("z@x.com", 10)}},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "over by 0.011",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 5), split("b@x.com", 5.011)}},
			wantErr: models.ErrSplitMismatch,
		},
		{
			name:    "under by 0.011",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 5), split("b@x.com", 4.989)}},
			wantErr: models.ErrSplitMismatch,
		},
		{
			name:    "over by 0.009",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 5), split("b@x.com", 5.009)}},
		},
		{
			name:    "under by 0.009",
			caller:  a,
			groupID: g.ID,
			in:      CreateExpenseInput{Title: "x", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("a@x.com", 5), split("b@x.com", 4.991)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateExpense(ctx, tt.caller, tt.groupID, tt.in)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Only the two accepted cases were written.
	_, page, err := env.engine.ListExpenses(ctx, a, g.ID, models.PageRequest{})
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if page.TotalItems != 2 {
		t.Errorf("got %d stored expenses, want 2", page.TotalItems)
	}
}

func TestSettleGroup(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	b := models.Identity{ID: "usr_b", Email: "b@x.com", Role: models.RoleAdmin}
	g := env.group(t, a, "b@x.com")

	if _, err := env.engine.CreateExpense(ctx, b, g.ID, CreateExpenseInput{
		Title: "Taxi", TotalAmount: 40, SplitDetails: []models.SplitDetail{split("a@x.com", 20), split("b@x.com", 20)},
	}); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	t.Run("non admin is forbidden", func(t *testing.T) {
		if _, err := env.engine.SettleGroup(ctx, b, g.ID); !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		if _, err := env.engine.SettleGroup(ctx, a, id.NewGroup()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("twice in a row", func(t *testing.T) {
		first, err := env.engine.SettleGroup(ctx, a, g.ID)
		if err != nil {
			t.Fatalf("SettleGroup failed: %v", err)
		}
		if first.SettledCount != 1 || !first.PaymentStatus.IsPaid || first.PaymentStatus.Amount != 0 {
			t.Errorf("got %+v", first)
		}
		b1, _ := env.engine.ComputeBalances(ctx, g.ID)

		second, err := env.engine.SettleGroup(ctx, a, g.ID)
		if err != nil {
			t.Fatalf("SettleGroup failed: %v", err)
		}
		if second.SettledCount != 0 {
			t.Errorf("second settle flipped %d expenses", second.SettledCount)
		}
		if second.PaymentStatus != first.PaymentStatus {
			t.Errorf("payment status: got %+v, want %+v", second.PaymentStatus, first.PaymentStatus)
		}
		b2, _ := env.engine.ComputeBalances(ctx, g.ID)
		for m := range b1 {
			if b1[m] != 0 || b2[m] != 0 {
				t.Errorf("%s: got %v then %v, want 0", m, b1[m], b2[m])
			}
		}
	})

	t.Run("new expense after settlement stays unsettled", func(t *testing.T) {
		if _, err := env.engine.CreateExpense(ctx, a, g.ID, CreateExpenseInput{
			Title: "Lunch", TotalAmount: 10, SplitDetails: []models.SplitDetail{split("b@x.com", 10)},
		}); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		balances, _ := env.engine.ComputeBalances(ctx, g.ID)
		assertBalances(t, balances, map[string]float64{"a@x.com": 10, "b@x.com": -10})
	})
}

func TestCreateGroup_Credits(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	t.Run("zero credits", func(t *testing.T) {
		broke := env.user(t, "broke@x.com", 0)
		_, err := env.engine.CreateGroup(ctx, broke, CreateGroupInput{Name: "Trip"})
		if !errors.Is(err, models.ErrInsufficientCredits) {
			t.Fatalf("got %v, want ErrInsufficientCredits", err)
		}
	})

	t.Run("bad input spends nothing", func(t *testing.T) {
		u := env.user(t, "careful@x.com", 1)
		if _, err := env.engine.CreateGroup(ctx, u, CreateGroupInput{Name: "  "}); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("got %v, want ErrInvalidInput", err)
		}
		if _, err := env.engine.CreateGroup(ctx, u, CreateGroupInput{Name: "x", MembersEmail: []string{"not-an-email"}}); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("got %v, want ErrInvalidInput", err)
		}
		stored, _ := env.store.GetUserByID(ctx, u.ID)
		if stored.Credits != 1 {
			t.Errorf("credits: got %d, want 1", stored.Credits)
		}
	})

	t.Run("members deduplicated and admin included", func(t *testing.T) {
		u := env.user(t, "owner@x.com", 1)
		g, err := env.engine.CreateGroup(ctx, u, CreateGroupInput{
			Name:         "Flat",
			MembersEmail: []string{"B@x.com", "b@x.com", "OWNER@x.com"},
		})
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if fmt.Sprint(g.MembersEmail) != fmt.Sprint([]string{"owner@x.com", "b@x.com"}) {
			t.Errorf("members: got %v", g.MembersEmail)
		}
		if g.PaymentStatus.Currency != DefaultCurrency || g.PaymentStatus.IsPaid {
			t.Errorf("payment status: got %+v", g.PaymentStatus)
		}
	})

	t.Run("concurrent creations with one credit", func(t *testing.T) {
		u := env.user(t, "racer@x.com", 1)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := env.engine.CreateGroup(ctx, u, CreateGroupInput{Name: fmt.Sprintf("g%d", n)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case !errors.Is(err, models.ErrInsufficientCredits):
				t.Errorf("unexpected error: %v", err)
			}
		}
		if ok != 1 {
			t.Errorf("got %d successful creations, want 1", ok)
		}

		stored, _ := env.store.GetUserByID(ctx, u.ID)
		if stored.Credits != 0 {
			t.Errorf("credits: got %d, want 0", stored.Credits)
		}
		_, page, _ := env.engine.ListMyGroups(ctx, u, ListGroupsInput{})
		if page.TotalItems != 1 {
			t.Errorf("groups: got %d, want 1", page.TotalItems)
		}
	})
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	b := models.Identity{ID: "usr_b", Email: "b@x.com", Role: models.RoleAdmin}
	g := env.group(t, a, "b@x.com")

	e, err := env.engine.CreateExpense(ctx, a, g.ID, CreateExpenseInput{
		Title: "Hotel", TotalAmount: 100, SplitDetails: []models.SplitDetail{split("a@x.com", 50), split("b@x.com", 50)},
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	title := "Hostel"
	total := 80.0

	t.Run("non creator forbidden", func(t *testing.T) {
		if _, err := env.engine.UpdateExpense(ctx, b, e.ID, models.ExpenseUpdate{Title: &title}); !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
		if err := env.engine.DeleteExpense(ctx, b, e.ID); !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown expense", func(t *testing.T) {
		if _, err := env.engine.UpdateExpense(ctx, a, id.NewExpense(), models.ExpenseUpdate{Title: &title}); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
		if err := env.engine.DeleteExpense(ctx, a, id.NewExpense()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("both total and splits are checked", func(t *testing.T) {
		_, err := env.engine.UpdateExpense(ctx, a, e.ID, models.ExpenseUpdate{
			TotalAmount:  &total,
			SplitDetails: []models.SplitDetail{split("a@x.com", 50), split("b@x.com", 50)},
		})
		if !errors.Is(err, models.ErrSplitMismatch) {
			t.Fatalf("got %v, want ErrSplitMismatch", err)
		}
	})

	t.Run("total alone is not re-checked", func(t *testing.T) {
		updated, err := env.engine.UpdateExpense(ctx, a, e.ID, models.ExpenseUpdate{Title: &title, TotalAmount: &total})
		if err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}
		if updated.Title != "Hostel" || updated.TotalAmount != 80 || updated.Version != 2 {
			t.Errorf("got %+v", updated)
		}
	})

	t.Run("creator deletes", func(t *testing.T) {
		if err := env.engine.DeleteExpense(ctx, a, e.ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}
		balances, _ := env.engine.ComputeBalances(ctx, g.ID)
		assertBalances(t, balances, map[string]float64{"a@x.com": 0, "b@x.com": 0})
	})
}

func TestMembers(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	g := env.group(t, a, "b@x.com")

	updated, err := env.engine.AddMembers(ctx, a, g.ID, []string{"C@x.com", "c@x.com"})
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if len(updated.MembersEmail) != 3 {
		t.Errorf("members: got %v", updated.MembersEmail)
	}

	if _, err := env.engine.AddMembers(ctx, a, g.ID, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if _, err := env.engine.RemoveMembers(ctx, a, g.ID, []string{"a@x.com"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if _, err := env.engine.AddMembers(ctx, a, "", []string{"d@x.com"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}

	outsider := models.Identity{ID: "usr_z", Email: "z@x.com", Role: models.RoleAdmin}
	if _, err := env.engine.AddMembers(ctx, outsider, g.ID, []string{"z@x.com"}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	// An outsider asking to remove the admin learns nothing about who the admin is.
	if _, err := env.engine.RemoveMembers(ctx, outsider, g.ID, []string{"a@x.com"}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	b := models.Identity{ID: "usr_b", Email: "b@x.com", Role: models.RoleAdmin}
	if _, err := env.engine.RemoveMembers(ctx, b, g.ID, []string{"c@x.com"}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-admin remove: got %v, want ErrForbidden", err)
	}
	if _, err := env.engine.AddMembers(ctx, b, g.ID, []string{"z@x.com"}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-admin add: got %v, want ErrForbidden", err)
	}
	if got, _ := env.store.GetGroup(ctx, g.ID); len(got.MembersEmail) != 3 {
		t.Errorf("members changed after denied calls: %v", got.MembersEmail)
	}

	updated, err = env.engine.RemoveMembers(ctx, a, g.ID, []string{"b@x.com"})
	if err != nil {
		t.Fatalf("RemoveMembers failed: %v", err)
	}
	if fmt.Sprint(updated.MembersEmail) != fmt.Sprint([]string{"a@x.com", "c@x.com"}) {
		t.Errorf("members: got %v", updated.MembersEmail)
	}

	entries, _ := env.trail.Read(ctx, g.ID)
	if len(entries) != 3 {
		t.Fatalf("got %d audit entries, want 3", len(entries))
	}
	if entries[1].Message != "Members added by a@x.com: c@x.com" {
		t.Errorf("got %q", entries[1].Message)
	}
}

func TestUpdateGroup(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	b := models.Identity{ID: "usr_b", Email: "b@x.com", Role: models.RoleAdmin}
	g := env.group(t, a, "b@x.com")

	name := "Renamed"
	if _, err := env.engine.UpdateGroup(ctx, b, g.ID, UpdateGroupInput{Name: &name}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	if _, err := env.engine.UpdateGroup(ctx, a, g.ID, UpdateGroupInput{Name: &name, Version: 99}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	updated, err := env.engine.UpdateGroup(ctx, a, g.ID, UpdateGroupInput{Name: &name, Version: g.Version})
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if updated.Name != "Renamed" || updated.Version != g.Version+1 {
		t.Errorf("got %+v", updated)
	}
}

func TestGroupSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("raw balances and access", func(t *testing.T) {
		env := setupEngine(t)
		a := env.user(t, "a@x.com", 1)
		g := env.group(t, a, "b@x.com")

		summary, err := env.engine.GroupSummary(ctx, a, g.ID)
		if err != nil {
			t.Fatalf("GroupSummary failed: %v", err)
		}
		if summary.GroupName != "Trip" || len(summary.Balances) != 2 || summary.Transfers != nil {
			t.Errorf("got %+v", summary)
		}

		outsider := models.Identity{Email: "z@x.com"}
		if _, err := env.engine.GroupSummary(ctx, outsider, g.ID); !errors.Is(err, models.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
		if _, err := env.engine.GroupSummary(ctx, a, id.NewGroup()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("installed planner", func(t *testing.T) {
		env := setupEngine(t, WithTransferPlanner(stubPlanner{}))
		a := env.user(t, "a@x.com", 1)
		g := env.group(t, a, "b@x.com")

		summary, err := env.engine.GroupSummary(ctx, a, g.ID)
		if err != nil {
			t.Fatalf("GroupSummary failed: %v", err)
		}
		if len(summary.Transfers) != 1 || summary.Transfers[0].From != "planned" {
			t.Errorf("got %+v", summary.Transfers)
		}
	})
}

type stubPlanner struct{}

func (stubPlanner) Plan(calculator.Balances) []calculator.Transfer {
	return []calculator.Transfer{{From: "planned"}}
}

type brokenTrail struct{}

func (brokenTrail) Append(context.Context, string, string) error { return errors.New("disk full") }
func (brokenTrail) Read(context.Context, string) ([]models.AuditEntry, error) {
	return nil, errors.New("disk full")
}

// Audit failures are logged, never surfaced.
func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	env := setupEngine(t)
	env.engine.trail = brokenTrail{}
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)

	g := env.group(t, a, "b@x.com")
	if _, err := env.engine.SettleGroup(ctx, a, g.ID); err != nil {
		t.Fatalf("SettleGroup failed: %v", err)
	}
}

func TestAuditLog(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	a := env.user(t, "a@x.com", 1)
	g := env.group(t, a)

	if _, err := env.engine.AuditLog(ctx, a, ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	entries, err := env.engine.AuditLog(ctx, a, id.NewGroup())
	if err != nil || len(entries) != 0 {
		t.Fatalf("got %v, %v; want empty", entries, err)
	}
	if _, err := env.engine.AuditLog(ctx, models.Identity{Email: "z@x.com"}, g.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

// Any sequence of accepted expenses keeps balances summing to zero.
func TestConservationThroughEngine(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	members := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}
	callers := make([]models.Identity, len(members))
	for i, m := range members {
		callers[i] = models.Identity{ID: fmt.Sprintf("usr_%d", i), Email: m}
	}
	callers[0] = env.user(t, "a@x.com", 1)
	g := env.group(t, callers[0], members[1:]...)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		var splits []models.SplitDetail
		total := 0.0
		for _, m := range members {
			amount := float64(rng.Intn(5000)) / 100
			total += amount
			splits = append(splits, split(m, amount))
		}
		if total == 0 {
			continue
		}
		if _, err := env.engine.CreateExpense(ctx, callers[rng.Intn(len(callers))], g.ID, CreateExpenseInput{
			Title: "x", TotalAmount: total, SplitDetails: splits,
		}); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
	}

	balances, err := env.engine.ComputeBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	if sum, _ := balances.Sum().Float64(); math.Abs(sum) > 1e-9 {
		t.Errorf("balances sum to %v", sum)
	}
}
