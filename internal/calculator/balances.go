package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
)

// Balances maps member email to signed net amount.
// Positive means the member is owed money, negative means the member owes.
type Balances map[string]float64

// Transfer is one payment that would move balances toward zero.
type Transfer struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// TransferPlanner turns net balances into a list of settling transfers.
// No planner is installed by default; summaries report raw net balances.
type TransferPlanner interface {
	Plan(balances Balances) []Transfer
}

// ComputeBalances derives net balances from the unsettled expenses of a group.
//
// Every current member starts at 0. For each unsettled expense and each split
// line whose member is not the payer, the line amount moves from that member
// to the payer. The payer's own share is a no-op. Members referenced by an
// expense but no longer in the group keep their balance, so the result always
// sums to zero.
func ComputeBalances(members []string, expenses []*models.Expense) Balances {
	acc := make(map[string]decimal.Decimal, len(members))
	for _, m := range members {
		acc[models.NormalizeEmail(m)] = decimal.Zero
	}

	for _, e := range expenses {
		if e.IsSettled {
			continue
		}
		payer := models.NormalizeEmail(e.PaidBy)
		for _, s := range e.SplitDetails {
			member := models.NormalizeEmail(s.MemberEmail)
			if member == payer {
				continue
			}
			amount := decimal.NewFromFloat(s.Amount)
			acc[member] = acc[member].Sub(amount)
			acc[payer] = acc[payer].Add(amount)
		}
	}

	out := make(Balances, len(acc))
	for m, v := range acc {
		out[m] = v.InexactFloat64()
	}
	return out
}

// Sum returns the exact sum of all balances. Zero for any valid ledger.
func (b Balances) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total
}
