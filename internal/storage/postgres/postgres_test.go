package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock), mock
}

func sqlPrefix(s string) string {
	return "^" + regexp.QuoteMeta(s)
}

func userRows(credits int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "email", "role", "admin_id", "credits", "password_hash", "created_at"}).
		AddRow("usr_1", "alice@example.com", models.RoleAdmin, "", credits, "", int64(1700000000))
}

func groupRows(isPaid bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "description", "admin_email",
		"payment_amount", "payment_currency", "payment_last_settled_at", "payment_is_paid",
		"version", "created_at",
	}).AddRow("grp_1", "Trip", "", "alice@example.com", 0.0, "INR", int64(0), isPaid, int64(3), int64(1700000000))
}

func memberRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"group_id", "email"}).
		AddRow("grp_1", "alice@example.com").
		AddRow("grp_1", "bob@example.com")
}

func TestDecrementCredits(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		want    int
		wantErr error
	}{
		{
			name: "spends one credit",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(sqlPrefix("UPDATE users SET credits = credits - 1 WHERE id = $1 AND credits > 0 RETURNING credits")).
					WithArgs("usr_1").
					WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(2))
			},
			want: 2,
		},
		{
			name: "zero balance",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(sqlPrefix("UPDATE users SET credits")).
					WithArgs("usr_1").
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(sqlPrefix("SELECT id, email")).
					WithArgs("usr_1").
					WillReturnRows(userRows(0))
			},
			wantErr: models.ErrInsufficientCredits,
		},
		{
			name: "unknown user",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(sqlPrefix("UPDATE users SET credits")).
					WithArgs("usr_1").
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(sqlPrefix("SELECT id, email")).
					WithArgs("usr_1").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setup(mock)

			got, err := store.DecrementCredits(context.Background(), "usr_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIncrementCredits(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(sqlPrefix("UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits")).
		WithArgs(3, "usr_1").
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(4))

	got, err := store.IncrementCredits(context.Background(), "usr_1", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemPurchase(t *testing.T) {
	purchase := func() *models.Purchase {
		return &models.Purchase{OrderID: "order_1", PaymentID: "pay_1", UserID: "usr_1", Credits: 3, CreatedAt: 1700000000}
	}

	t.Run("records order and grants", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(sqlPrefix("INSERT INTO purchases (order_id,payment_id,user_id,credits,created_at)")).
			WithArgs("order_1", "pay_1", "usr_1", 3, int64(1700000000)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(sqlPrefix("UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits")).
			WithArgs(3, "usr_1").
			WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(3))
		mock.ExpectCommit()

		total, err := store.RedeemPurchase(context.Background(), purchase())
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed order rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(sqlPrefix("INSERT INTO purchases")).
			WithArgs("order_1", "pay_1", "usr_1", 3, int64(1700000000)).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err := store.RedeemPurchase(context.Background(), purchase())
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(sqlPrefix("INSERT INTO users (id,email,role,admin_id,credits,password_hash,created_at)")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateUser(context.Background(), &models.User{ID: "usr_1", Email: "alice@example.com", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(sqlPrefix("SELECT id, email, role, admin_id, credits, password_hash, created_at FROM users WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(5))

	u, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", u.ID)
	assert.Equal(t, 5, u.Credits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGroup(t *testing.T) {
	t.Run("matching version", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(sqlPrefix("UPDATE groups SET name = $1, description = $2, version = version + 1 WHERE id = $3 AND version = $4")).
			WithArgs("Goa", "beach", "grp_1", int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		g := &models.Group{ID: "grp_1", Name: "Goa", Description: "beach", Version: 3}
		require.NoError(t, store.UpdateGroup(context.Background(), g))
		assert.Equal(t, int64(4), g.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(sqlPrefix("UPDATE groups SET name")).
			WithArgs("Goa", "", "grp_1", int64(2)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(sqlPrefix("SELECT g.id")).
			WithArgs("grp_1").
			WillReturnRows(groupRows(false))
		mock.ExpectQuery(sqlPrefix("SELECT group_id, email FROM group_members")).
			WithArgs("grp_1").
			WillReturnRows(memberRows())

		g := &models.Group{ID: "grp_1", Name: "Goa", Version: 2}
		err := store.UpdateGroup(context.Background(), g)
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.Equal(t, int64(2), g.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetGroup(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(sqlPrefix("SELECT g.id")).
		WithArgs("grp_1").
		WillReturnRows(groupRows(false))
	mock.ExpectQuery(sqlPrefix("SELECT group_id, email FROM group_members WHERE group_id IN ($1) ORDER BY seq")).
		WithArgs("grp_1").
		WillReturnRows(memberRows())

	g, err := store.GetGroup(context.Background(), "grp_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, g.MembersEmail)
	assert.Equal(t, "INR", g.PaymentStatus.Currency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleGroup(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(sqlPrefix("SELECT g.id")).
		WithArgs("grp_1").
		WillReturnRows(groupRows(false))
	mock.ExpectQuery(sqlPrefix("SELECT group_id, email FROM group_members")).
		WithArgs("grp_1").
		WillReturnRows(memberRows())
	mock.ExpectExec(sqlPrefix("UPDATE expenses SET is_settled = $1, version = version + 1 WHERE group_id = $2 AND is_settled = $3")).
		WithArgs(true, "grp_1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(sqlPrefix("UPDATE groups SET payment_amount = $1, payment_is_paid = $2, payment_last_settled_at = $3")).
		WithArgs(0.0, true, int64(1700000100), "grp_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(sqlPrefix("SELECT g.id")).
		WithArgs("grp_1").
		WillReturnRows(groupRows(true))
	mock.ExpectQuery(sqlPrefix("SELECT group_id, email FROM group_members")).
		WithArgs("grp_1").
		WillReturnRows(memberRows())
	mock.ExpectCommit()

	settled, g, err := store.SettleGroup(context.Background(), "grp_1", 1700000100)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.True(t, g.PaymentStatus.IsPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleGroup_UnknownGroupRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(sqlPrefix("SELECT g.id")).
		WithArgs("grp_404").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := store.SettleGroup(context.Background(), "grp_404", 1700000100)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpense_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(sqlPrefix("DELETE FROM expenses WHERE id = $1")).
		WithArgs("exp_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.DeleteExpense(context.Background(), "exp_1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditTrail(t *testing.T) {
	store, mock := newMockStore(t)
	trail := store.AuditTrail()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	entryID := uuid.MustParse("0b7c1f8e-3c2a-4d8e-9a51-2f7c0e6d1a44")
	trail.now = func() time.Time { return at }
	trail.newID = func() uuid.UUID { return entryID }

	mock.ExpectExec(sqlPrefix("INSERT INTO audit_entries (id,group_id,message,created_at)")).
		WithArgs(entryID, "grp_1", "Group created", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(sqlPrefix("SELECT group_id, message, created_at FROM audit_entries WHERE group_id = $1 ORDER BY seq")).
		WithArgs("grp_1").
		WillReturnRows(pgxmock.NewRows([]string{"group_id", "message", "created_at"}).
			AddRow("grp_1", "Group created", at))

	require.NoError(t, trail.Append(context.Background(), "grp_1", "Group created"))
	entries, err := trail.Read(context.Background(), "grp_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Group created", entries[0].Message)
	assert.True(t, at.Equal(entries[0].Timestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, models.ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrInvalidInput},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "group", "grp_1")
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), "group grp_1")
		})
	}

	assert.NoError(t, mapError(nil, "group", "grp_1"))

	other := errors.New("connection reset")
	assert.ErrorIs(t, mapError(other, "group", "grp_1"), other)
}
