// Package ledger implements group and expense lifecycle, balance computation
// and settlement.
//
// The engine assumes the caller has already passed the permission check and
// enforces the per-resource rules on top of it: membership for reads and
// expense creation, admin for settlement and group updates, creator for
// expense mutation. Audit entries are best-effort; a failed append is logged
// and counted but never fails the operation.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/storage"
)

// DefaultCurrency is used when none is configured.
const DefaultCurrency = "INR"

// creditAccount is the subset of credit.Account the engine uses.
type creditAccount interface {
	Consume(ctx context.Context, userID string) (int, error)
	Refund(ctx context.Context, userID string) error
}

// Engine is the ledger domain service.
type Engine struct {
	store    storage.Store
	credits  creditAccount
	trail    audit.Trail
	planner  calculator.TransferPlanner
	metrics  *metrics.Metrics
	currency string
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransferPlanner installs a planner whose transfers are included in group summaries.
func WithTransferPlanner(p calculator.TransferPlanner) Option {
	return func(e *Engine) { e.planner = p }
}

// WithMetrics records operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCurrency sets the currency of new groups.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = currency
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(store storage.Store, credits creditAccount, trail audit.Trail, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		credits:  credits,
		trail:    trail,
		currency: DefaultCurrency,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// record appends to the audit trail without propagating failures.
func (e *Engine) record(ctx context.Context, groupID, message string) {
	if err := e.trail.Append(ctx, groupID, message); err != nil {
		slog.Warn("audit append failed", "group_id", groupID, "error", err)
		e.metrics.AuditFailure()
	}
}
