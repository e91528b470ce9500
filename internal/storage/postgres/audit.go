package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/models"
)

var _ audit.Trail = (*AuditTrail)(nil)

// AuditTrail stores audit entries in the audit_entries table. Rows are
// append-only; the seq column fixes read order.
type AuditTrail struct {
	db    Querier
	now   func() time.Time
	newID func() uuid.UUID
}

// AuditTrail returns a trail sharing this store's pool.
func (s *PostgresStore) AuditTrail() *AuditTrail {
	return &AuditTrail{db: s.db, now: time.Now, newID: uuid.New}
}

// Append inserts one entry.
func (t *AuditTrail) Append(ctx context.Context, groupID, message string) error {
	entryID := t.newID()
	_, err := exec(ctx, t.db, psql.Insert("audit_entries").
		Columns("id", "group_id", "message", "created_at").
		Values(entryID, groupID, message, t.now().UTC()))
	if err != nil {
		return mapError(err, "audit entry", entryID.String())
	}
	return nil
}

// Read returns the group's entries in append order.
func (t *AuditTrail) Read(ctx context.Context, groupID string) ([]models.AuditEntry, error) {
	rows, err := query(ctx, t.db, psql.Select("group_id", "message", "created_at").
		From("audit_entries").
		Where(squirrel.Eq{"group_id": groupID}).
		OrderBy("seq"))
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditEntry, error) {
		var e models.AuditEntry
		err := row.Scan(&e.GroupID, &e.Message, &e.Timestamp)
		e.Timestamp = e.Timestamp.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}
