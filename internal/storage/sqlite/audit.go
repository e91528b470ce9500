package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/models"
)

var _ audit.Trail = (*AuditTrail)(nil)

// AuditTrail stores audit entries in the audit_entries table.
// The autoincrement seq column fixes append order.
type AuditTrail struct {
	db  querier
	now func() time.Time
}

// AuditTrail returns a trail sharing this store's connection.
func (s *SQLiteStore) AuditTrail() *AuditTrail {
	return &AuditTrail{db: s.db, now: time.Now}
}

// Append inserts one entry.
func (t *AuditTrail) Append(ctx context.Context, groupID, message string) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO audit_entries (group_id, message, created_at) VALUES (?, ?, ?)`,
		groupID, message, t.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Read returns the group's entries in append order.
func (t *AuditTrail) Read(ctx context.Context, groupID string) ([]models.AuditEntry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT group_id, message, created_at FROM audit_entries WHERE group_id = ? ORDER BY seq`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var ts int64
		if err := rows.Scan(&e.GroupID, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
