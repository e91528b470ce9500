// Package audit implements the per-group append-only audit trail.
//
// A Trail is a sequence of timestamped messages per group. Entries are never
// edited or removed and are read back in append order. Appends are
// best-effort from the caller's point of view: ledger operations log a failed
// append and carry on.
package audit

import (
	"context"
	"errors"

	"github.com/mmynk/groupledger/internal/models"
)

var (
	// ErrBufferFull is returned by Worker.Append when the queue is saturated.
	ErrBufferFull = errors.New("audit: buffer full, entry dropped")
	// ErrClosed is returned by Worker.Append after Shutdown.
	ErrClosed = errors.New("audit: worker closed")
)

// Trail is an append-only per-group journal.
type Trail interface {
	// Append adds one entry to the group's trail, creating it if absent.
	Append(ctx context.Context, groupID, message string) error

	// Read returns every entry of the group's trail in append order,
	// or an empty slice if the group has none.
	Read(ctx context.Context, groupID string) ([]models.AuditEntry, error)
}
