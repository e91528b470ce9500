package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mmynk/groupledger/internal/models"
)

// Table is an immutable role → permission set. Build it with NewTable;
// the zero value denies everything.
type Table struct {
	roles map[string]map[Permission]struct{}
}

// NewTable copies roles into a Table. Role names are lowercased.
func NewTable(roles map[string][]Permission) Table {
	t := Table{roles: make(map[string]map[Permission]struct{}, len(roles))}
	for role, perms := range roles {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		t.roles[strings.ToLower(role)] = set
	}
	return t
}

// Default returns the table built from DefaultRoles.
func Default() Table {
	return NewTable(DefaultRoles())
}

// ParseTable builds a Table from configuration strings, rejecting empty role
// names and malformed permissions.
func ParseTable(raw map[string][]string) (Table, error) {
	roles := make(map[string][]Permission, len(raw))
	for role, perms := range raw {
		if strings.TrimSpace(role) == "" {
			return Table{}, fmt.Errorf("authz: empty role name")
		}
		for _, p := range perms {
			if !strings.Contains(p, ":") {
				return Table{}, fmt.Errorf("authz: role %q: malformed permission %q", role, p)
			}
			roles[role] = append(roles[role], Permission(p))
		}
	}
	return NewTable(roles), nil
}

// Authorize returns nil when role holds permission and a wrapped
// models.ErrForbidden otherwise. Unknown roles are denied.
func (t Table) Authorize(role string, permission Permission) error {
	set, ok := t.roles[strings.ToLower(role)]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", models.ErrForbidden, role)
	}
	if _, ok := set[permission]; !ok {
		return fmt.Errorf("%w: insufficient permissions for %s", models.ErrForbidden, permission)
	}
	return nil
}

// HasRole reports whether role is defined.
func (t Table) HasRole(role string) bool {
	_, ok := t.roles[strings.ToLower(role)]
	return ok
}

// Roles returns the defined role names in sorted order.
func (t Table) Roles() []string {
	names := make([]string, 0, len(t.roles))
	for r := range t.roles {
		names = append(names, r)
	}
	slices.Sort(names)
	return names
}
