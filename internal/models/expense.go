package models

// Expense is one cost paid by a group member and split across members.
type Expense struct {
	// ID is the unique identifier for the expense (exp_ typeid).
	ID string `json:"id"`

	// GroupID is the group this expense belongs to.
	GroupID string `json:"groupId"`

	// Title is a short label (e.g., "Dinner").
	Title string `json:"title"`

	// Description is optional.
	Description string `json:"description,omitempty"`

	// TotalAmount is the full amount paid.
	TotalAmount float64 `json:"totalAmount"`

	// PaidBy is the email of the member who paid and who alone may modify the expense.
	PaidBy string `json:"paidBy"`

	// SplitDetails assigns a share of TotalAmount to each member, in order.
	SplitDetails []SplitDetail `json:"splitDetails"`

	// IsSettled flips to true only through group settlement.
	IsSettled bool `json:"isSettled"`

	// Version is incremented on every mutation and used for compare-and-swap updates.
	Version int64 `json:"version"`

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64 `json:"createdAt"`
}

// SplitDetail is one member's share of an expense.
type SplitDetail struct {
	MemberEmail string  `json:"memberEmail"`
	Amount      float64 `json:"amount"`
	IsPaid      bool    `json:"isPaid"`
}

// ExpenseUpdate carries the fields a creator may change. Nil fields are left untouched.
type ExpenseUpdate struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	TotalAmount  *float64      `json:"totalAmount,omitempty"`
	SplitDetails []SplitDetail `json:"splitDetails,omitempty"`
}
