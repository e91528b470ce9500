package models

// Identity is the already-authenticated caller of an operation.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	AdminID string `json:"adminId,omitempty"`
}
