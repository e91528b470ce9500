package models

// Purchase is a verified payment order whose credits were granted.
// An order is redeemed at most once.
type Purchase struct {
	// OrderID is the payment gateway's order id and the redemption key.
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	// UserID is the account the credits went to.
	UserID    string `json:"userId"`
	Credits   int    `json:"credits"`
	CreatedAt int64  `json:"createdAt"`
}
