package credit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/mmynk/groupledger/internal/models"
)

// PurchaseVerifier checks the signature the payment gateway attaches to a
// completed order: hex(HMAC-SHA256(secret, orderID|paymentID|credits)).
// The credit amount is part of the signed payload, so it cannot be changed
// without invalidating the signature.
type PurchaseVerifier struct {
	secret []byte
}

// NewPurchaseVerifier returns a verifier for secret. An empty secret rejects
// every purchase.
func NewPurchaseVerifier(secret string) *PurchaseVerifier {
	return &PurchaseVerifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *PurchaseVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Sign computes the expected signature.
func (v *PurchaseVerifier) Sign(orderID, paymentID string, credits int) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID + "|" + strconv.Itoa(credits)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns nil when signature matches the order, payment and amount.
func (v *PurchaseVerifier) Verify(orderID, paymentID string, credits int, signature string) error {
	if !v.Enabled() {
		return fmt.Errorf("%w: purchases are disabled", models.ErrForbidden)
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return models.NewValidationError("signature", "orderId, paymentId and signature are required")
	}
	if credits <= 0 {
		return models.NewValidationError("credits", "must be positive")
	}
	if !hmac.Equal([]byte(v.Sign(orderID, paymentID, credits)), []byte(signature)) {
		return models.NewValidationError("signature", "does not match")
	}
	return nil
}
