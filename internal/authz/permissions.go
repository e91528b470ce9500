// Package authz holds the role → permission table and the stateless
// authorize decision built on top of it.
package authz

// Permission names one allowed action.
type Permission string

const (
	UserCreate Permission = "user:create"
	UserUpdate Permission = "user:update"
	UserDelete Permission = "user:delete"
	UserView   Permission = "user:view"

	GroupCreate        Permission = "group:create"
	GroupUpdate        Permission = "group:update"
	GroupDelete        Permission = "group:delete"
	GroupView          Permission = "group:view"
	GroupMembersAdd    Permission = "group:members:add"
	GroupMembersRemove Permission = "group:members:remove"

	PaymentCreate Permission = "payment:create"

	ExpenseCreate Permission = "expense:create"
	ExpenseView   Permission = "expense:view"
	ExpenseUpdate Permission = "expense:update"
	ExpenseDelete Permission = "expense:delete"
	ExpenseSettle Permission = "expense:settle"
)

// DefaultRoles is the built-in assignment used when configuration supplies none.
// admin holds everything, manager can create and update but not delete users
// or groups, viewer is read-only.
func DefaultRoles() map[string][]Permission {
	return map[string][]Permission{
		"admin": {
			UserCreate, UserUpdate, UserDelete, UserView,
			GroupCreate, GroupUpdate, GroupDelete, GroupView,
			GroupMembersAdd, GroupMembersRemove,
			PaymentCreate,
			ExpenseCreate, ExpenseView, ExpenseUpdate, ExpenseDelete, ExpenseSettle,
		},
		"manager": {
			UserView,
			GroupCreate, GroupUpdate, GroupView,
			GroupMembersAdd, GroupMembersRemove,
			ExpenseCreate, ExpenseView, ExpenseUpdate, ExpenseDelete, ExpenseSettle,
		},
		"viewer": {
			UserView, GroupView, ExpenseView,
		},
	}
}
