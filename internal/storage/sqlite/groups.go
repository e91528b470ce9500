package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const groupColumns = `id, name, description, admin_email, payment_amount, payment_currency,
	payment_last_settled_at, payment_is_paid, version, created_at`

// CreateGroup persists a new group and its members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, group.AdminEmail,
		group.PaymentStatus.Amount, group.PaymentStatus.Currency,
		group.PaymentStatus.LastSettledAt, boolToInt(group.PaymentStatus.IsPaid),
		group.Version, group.CreatedAt,
	)
	if err != nil {
		return mapError(err, "group", group.ID)
	}

	if err := insertMembers(ctx, tx, group.ID, group.MembersEmail); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return loadGroup(ctx, s.db, groupID)
}

// UpdateGroup writes name and description guarded by the version column.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name = ?, description = ?, version = version + 1 WHERE id = ? AND version = ?`,
		group.Name, group.Description, group.ID, group.Version,
	)
	if err != nil {
		return mapError(err, "group", group.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetGroup(ctx, group.ID); err != nil {
			return err
		}
		return fmt.Errorf("group %s version %d: %w", group.ID, group.Version, models.ErrConflict)
	}
	group.Version++
	return nil
}

// AddGroupMembers adds emails to the group; existing members are ignored.
func (s *SQLiteStore) AddGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadGroup(ctx, tx, groupID); err != nil {
		return nil, err
	}
	if err := insertMembers(ctx, tx, groupID, emails); err != nil {
		return nil, err
	}
	if err := bumpGroupVersion(ctx, tx, groupID); err != nil {
		return nil, err
	}

	group, err := loadGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return group, nil
}

// RemoveGroupMembers removes emails from the group, never the admin.
func (s *SQLiteStore) RemoveGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := loadGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	for _, email := range emails {
		if email == current.AdminEmail {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND email = ?`, groupID, email,
		); err != nil {
			return nil, fmt.Errorf("failed to remove member: %w", err)
		}
	}
	if err := bumpGroupVersion(ctx, tx, groupID); err != nil {
		return nil, err
	}

	group, err := loadGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return group, nil
}

// ListGroups returns the groups a member belongs to, one page at a time.
func (s *SQLiteStore) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, int, error) {
	where := []string{`EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.email = ?)`}
	args := []any{filter.MemberEmail}
	if filter.IsPaid != nil {
		where = append(where, `g.payment_is_paid = ?`)
		args = append(args, boolToInt(*filter.IsPaid))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups g WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	order := "DESC"
	if filter.Page.Sort == models.SortOldest {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM groups g WHERE %s ORDER BY g.created_at %s, g.id %s LIMIT ? OFFSET ?`,
		groupColumns, cond, order, order)
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.Page.Limit, filter.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("error iterating groups: %w", err)
	}
	rows.Close()

	// Members are loaded after the cursor is closed; the store holds a single connection.
	for _, g := range groups {
		if g.MembersEmail, err = loadMembers(ctx, s.db, g.ID); err != nil {
			return nil, 0, err
		}
	}
	return groups, total, nil
}

// SettleGroup marks every unsettled expense settled and resets the payment status.
func (s *SQLiteStore) SettleGroup(ctx context.Context, groupID string, settledAt int64) (int, *models.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadGroup(ctx, tx, groupID); err != nil {
		return 0, nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET is_settled = 1, version = version + 1 WHERE group_id = ? AND is_settled = 0`,
		groupID,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to settle expenses: %w", err)
	}
	settled, err := res.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE groups
		 SET payment_amount = 0, payment_is_paid = 1, payment_last_settled_at = ?, version = version + 1
		 WHERE id = ? AND (? > 0 OR payment_is_paid = 0)`,
		settledAt, groupID, settled,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to reset payment status: %w", err)
	}

	group, err := loadGroup(ctx, tx, groupID)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(settled), group, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	g := &models.Group{}
	var isPaid int
	err := row.Scan(
		&g.ID, &g.Name, &g.Description, &g.AdminEmail,
		&g.PaymentStatus.Amount, &g.PaymentStatus.Currency,
		&g.PaymentStatus.LastSettledAt, &isPaid,
		&g.Version, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.PaymentStatus.IsPaid = isPaid == 1
	return g, nil
}

func loadGroup(ctx context.Context, q querier, groupID string) (*models.Group, error) {
	g, err := scanGroup(q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, groupID))
	if err != nil {
		return nil, mapError(err, "group", groupID)
	}
	if g.MembersEmail, err = loadMembers(ctx, q, groupID); err != nil {
		return nil, err
	}
	return g, nil
}

func loadMembers(ctx context.Context, q querier, groupID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT email FROM group_members WHERE group_id = ? ORDER BY rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, email)
	}
	return members, rows.Err()
}

func insertMembers(ctx context.Context, q querier, groupID string, emails []string) error {
	for _, email := range emails {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, email) VALUES (?, ?)`, groupID, email,
		); err != nil {
			return mapError(err, "group member", email)
		}
	}
	return nil
}

func bumpGroupVersion(ctx context.Context, q querier, groupID string) error {
	if _, err := q.ExecContext(ctx, `UPDATE groups SET version = version + 1 WHERE id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to bump group version: %w", err)
	}
	return nil
}
