package calculator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
)

// Tolerance is the largest accepted difference between the sum of the
// split lines and the expense total, in currency units.
var Tolerance = decimal.RequireFromString("0.01")

// SplitSum returns the exact decimal sum of the split amounts.
func SplitSum(splits []models.SplitDetail) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(decimal.NewFromFloat(s.Amount))
	}
	return sum
}

// CheckSplitSum fails with models.ErrSplitMismatch when
// |sum(splits) - total| > Tolerance.
func CheckSplitSum(total float64, splits []models.SplitDetail) error {
	sum := SplitSum(splits)
	diff := sum.Sub(decimal.NewFromFloat(total)).Abs()
	if diff.GreaterThan(Tolerance) {
		return fmt.Errorf("%w: splits sum to %s, total is %s", models.ErrSplitMismatch, sum.String(), decimal.NewFromFloat(total).String())
	}
	return nil
}

// NormalizeSplits validates the shape of split lines and returns a copy with
// emails normalized. Every member must belong to members; amounts must be
// non-negative; a member may appear only once.
func NormalizeSplits(splits []models.SplitDetail, members []string) ([]models.SplitDetail, error) {
	if len(splits) == 0 {
		return nil, models.NewValidationError("splitDetails", "at least one split line is required")
	}

	allowed := make(map[string]struct{}, len(members))
	for _, m := range members {
		allowed[models.NormalizeEmail(m)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(splits))
	out := make([]models.SplitDetail, 0, len(splits))
	for i, s := range splits {
		email := models.NormalizeEmail(s.MemberEmail)
		field := fmt.Sprintf("splitDetails[%d]", i)
		switch {
		case email == "" || !strings.Contains(email, "@"):
			return nil, models.NewValidationError(field, "memberEmail is required")
		case s.Amount < 0:
			return nil, models.NewValidationError(field, "amount must not be negative")
		}
		if _, ok := allowed[email]; !ok {
			return nil, models.NewValidationError(field, fmt.Sprintf("%s is not a group member", email))
		}
		if _, dup := seen[email]; dup {
			return nil, models.NewValidationError(field, fmt.Sprintf("%s appears more than once", email))
		}
		seen[email] = struct{}{}
		out = append(out, models.SplitDetail{MemberEmail: email, Amount: s.Amount, IsPaid: s.IsPaid})
	}
	return out, nil
}
