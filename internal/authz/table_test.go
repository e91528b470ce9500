package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
)

var allPermissions = []Permission{
	UserCreate, UserUpdate, UserDelete, UserView,
	GroupCreate, GroupUpdate, GroupDelete, GroupView, GroupMembersAdd, GroupMembersRemove,
	PaymentCreate,
	ExpenseCreate, ExpenseView, ExpenseUpdate, ExpenseDelete, ExpenseSettle,
}

func TestAuthorize_DefaultTable(t *testing.T) {
	table := Default()

	tests := []struct {
		role  string
		perm  Permission
		allow bool
	}{
		{"admin", ExpenseSettle, true},
		{"admin", UserCreate, true},
		{"manager", ExpenseCreate, true},
		{"manager", GroupMembersAdd, true},
		{"manager", UserCreate, false},
		{"manager", GroupDelete, false},
		{"manager", PaymentCreate, false},
		{"viewer", ExpenseView, true},
		{"viewer", GroupView, true},
		{"viewer", ExpenseCreate, false},
		{"viewer", GroupCreate, false},
		{"ghost", GroupView, false},
		{"", GroupView, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+string(tt.perm), func(t *testing.T) {
			err := table.Authorize(tt.role, tt.perm)
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrForbidden)
			}
		})
	}
}

// Every (role, permission) pair outside the role's entry must be denied.
func TestAuthorize_DeniesEverythingNotGranted(t *testing.T) {
	roles := DefaultRoles()
	table := NewTable(roles)

	for role, granted := range roles {
		for _, p := range allPermissions {
			err := table.Authorize(role, p)
			want := false
			for _, g := range granted {
				if g == p {
					want = true
				}
			}
			if want {
				assert.NoError(t, err, "%s should hold %s", role, p)
			} else {
				assert.True(t, errors.Is(err, models.ErrForbidden), "%s should not hold %s", role, p)
			}
		}
	}
}

func TestNewTable_IsACopy(t *testing.T) {
	roles := map[string][]Permission{"auditor": {GroupView}}
	table := NewTable(roles)
	roles["auditor"] = append(roles["auditor"], GroupDelete)

	assert.ErrorIs(t, table.Authorize("auditor", GroupDelete), models.ErrForbidden)
	assert.NoError(t, table.Authorize("AUDITOR", GroupView))
}

func TestZeroTableDenies(t *testing.T) {
	var table Table
	assert.ErrorIs(t, table.Authorize("admin", GroupView), models.ErrForbidden)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(map[string][]string{
		"auditor": {"group:view", "expense:view"},
	})
	require.NoError(t, err)
	assert.True(t, table.HasRole("auditor"))
	assert.Equal(t, []string{"auditor"}, table.Roles())
	assert.NoError(t, table.Authorize("auditor", ExpenseView))

	_, err = ParseTable(map[string][]string{"bad": {"nocolon"}})
	assert.Error(t, err)

	_, err = ParseTable(map[string][]string{" ": {"group:view"}})
	assert.Error(t, err)
}
