package models

import "slices"

// Group is a set of members sharing expenses. The admin is always a member.
type Group struct {
	// ID is the unique identifier for the group (grp_ typeid).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Goa Trip").
	Name string `json:"name"`

	// Description is an optional free-text description.
	Description string `json:"description,omitempty"`

	// AdminEmail is the email of the user who created the group.
	// Only the admin may settle the group and it can never be removed.
	AdminEmail string `json:"adminEmail"`

	// MembersEmail is the set of member emails, admin included.
	MembersEmail []string `json:"membersEmail"`

	// PaymentStatus is reset by settlement only.
	PaymentStatus PaymentStatus `json:"paymentStatus"`

	// Version is incremented on every mutation and used for compare-and-swap updates.
	Version int64 `json:"version"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"createdAt"`
}

// PaymentStatus summarizes the settlement state of a group.
type PaymentStatus struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	LastSettledAt int64   `json:"lastSettledAt,omitempty"`
	IsPaid        bool    `json:"isPaid"`
}

// IsMember reports whether email belongs to the group.
func (g *Group) IsMember(email string) bool {
	return slices.Contains(g.MembersEmail, NormalizeEmail(email))
}

// IsAdmin reports whether email is the group admin.
func (g *Group) IsAdmin(email string) bool {
	return g.AdminEmail == NormalizeEmail(email)
}
