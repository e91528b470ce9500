package credit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
)

// memStore mirrors the conditional-update contract of the SQL stores.
type memStore struct {
	mu      sync.Mutex
	credits map[string]int
	orders  map[string]bool
}

func (s *memStore) DecrementCredits(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credits[userID]
	if !ok {
		return 0, models.ErrNotFound
	}
	if c <= 0 {
		return 0, models.ErrInsufficientCredits
	}
	s.credits[userID] = c - 1
	return c - 1, nil
}

func (s *memStore) IncrementCredits(_ context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[userID]; !ok {
		return 0, models.ErrNotFound
	}
	s.credits[userID] += amount
	return s.credits[userID], nil
}

func (s *memStore) RedeemPurchase(_ context.Context, p *models.Purchase) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders[p.OrderID] {
		return 0, models.ErrConflict
	}
	if _, ok := s.credits[p.UserID]; !ok {
		return 0, models.ErrNotFound
	}
	s.orders[p.OrderID] = true
	s.credits[p.UserID] += p.Credits
	return s.credits[p.UserID], nil
}

func TestAccount_Consume(t *testing.T) {
	store := &memStore{credits: map[string]int{"u1": 1, "u0": 0}}
	acct := NewAccount(store)
	ctx := context.Background()

	remaining, err := acct.Consume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = acct.Consume(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrInsufficientCredits)

	_, err = acct.Consume(ctx, "u0")
	assert.ErrorIs(t, err, models.ErrInsufficientCredits)

	_, err = acct.Consume(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = acct.Consume(ctx, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAccount_ConcurrentConsumeSingleCredit(t *testing.T) {
	store := &memStore{credits: map[string]int{"u1": 1}}
	acct := NewAccount(store)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := acct.Consume(context.Background(), "u1"); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 0, store.credits["u1"])
}

func TestAccount_Grant(t *testing.T) {
	store := &memStore{credits: map[string]int{"u1": 0}}
	acct := NewAccount(store)
	ctx := context.Background()

	total, err := acct.Grant(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	_, err = acct.Grant(ctx, "u1", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = acct.Grant(ctx, "u1", -3)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, acct.Refund(ctx, "u1"))
	assert.Equal(t, 6, store.credits["u1"])
}

func TestAccount_Redeem(t *testing.T) {
	store := &memStore{credits: map[string]int{"u1": 0}, orders: map[string]bool{}}
	acct := NewAccount(store)
	ctx := context.Background()

	total, err := acct.Redeem(ctx, &models.Purchase{OrderID: "order_1", PaymentID: "pay_1", UserID: "u1", Credits: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = acct.Redeem(ctx, &models.Purchase{OrderID: "order_1", PaymentID: "pay_1", UserID: "u1", Credits: 3})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 3, store.credits["u1"])

	tests := []struct {
		name     string
		purchase models.Purchase
	}{
		{name: "no user", purchase: models.Purchase{OrderID: "o", Credits: 1}},
		{name: "no order", purchase: models.Purchase{UserID: "u1", Credits: 1}},
		{name: "zero credits", purchase: models.Purchase{OrderID: "o", UserID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := acct.Redeem(ctx, &tt.purchase)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestPurchaseVerifier(t *testing.T) {
	v := NewPurchaseVerifier("webhook-secret")
	sig := v.Sign("order_1", "pay_1", 5)

	assert.NoError(t, v.Verify("order_1", "pay_1", 5, sig))
	assert.ErrorIs(t, v.Verify("order_1", "pay_2", 5, sig), models.ErrInvalidInput)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", 5000, sig), models.ErrInvalidInput)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", 0, v.Sign("order_1", "pay_1", 0)), models.ErrInvalidInput)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", 5, ""), models.ErrInvalidInput)

	disabled := NewPurchaseVerifier("")
	assert.False(t, disabled.Enabled())
	assert.ErrorIs(t, disabled.Verify("order_1", "pay_1", 5, sig), models.ErrForbidden)
}
