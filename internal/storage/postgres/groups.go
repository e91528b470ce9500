package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

var groupColumns = []string{
	"g.id", "g.name", "g.description", "g.admin_email",
	"g.payment_amount", "g.payment_currency", "g.payment_last_settled_at", "g.payment_is_paid",
	"g.version", "g.created_at",
}

// CreateGroup persists a new group and its members.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.Version = 1

	return s.inTx(ctx, func(q Querier) error {
		_, err := exec(ctx, q, psql.Insert("groups").
			Columns("id", "name", "description", "admin_email",
				"payment_amount", "payment_currency", "payment_last_settled_at", "payment_is_paid",
				"version", "created_at").
			Values(group.ID, group.Name, group.Description, group.AdminEmail,
				group.PaymentStatus.Amount, group.PaymentStatus.Currency,
				group.PaymentStatus.LastSettledAt, group.PaymentStatus.IsPaid,
				group.Version, group.CreatedAt))
		if err != nil {
			return mapError(err, "group", group.ID)
		}
		return insertMembers(ctx, q, group.ID, group.MembersEmail)
	})
}

// GetGroup retrieves a group by ID, including its members.
func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return loadGroup(ctx, s.db, groupID, false)
}

// UpdateGroup writes name and description guarded by the version column.
func (s *PostgresStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	n, err := exec(ctx, s.db, psql.Update("groups").
		Set("name", group.Name).
		Set("description", group.Description).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": group.ID, "version": group.Version}))
	if err != nil {
		return mapError(err, "group", group.ID)
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
func (s *PostgresStore) AddGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	var group *models.Group
	err := s.inTx(ctx, func(q Querier) error {
		if _, err := loadGroup(ctx, q, groupID, true); err != nil {
			return err
		}
		if err := insertMembers(ctx, q, groupID, emails); err != nil {
			return err
		}
		if err := bumpGroupVersion(ctx, q, groupID); err != nil {
			return err
		}
		var err error
		group, err = loadGroup(ctx, q, groupID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// RemoveGroupMembers removes emails from the group, never the admin.
func (s *PostgresStore) RemoveGroupMembers(ctx context.Context, groupID string, emails []string) (*models.Group, error) {
	var group *models.Group
	err := s.inTx(ctx, func(q Querier) error {
		current, err := loadGroup(ctx, q, groupID, true)
		if err != nil {
			return err
		}
		if len(emails) > 0 {
			_, err = exec(ctx, q, psql.Delete("group_members").
				Where(squirrel.Eq{"group_id": groupID, "email": emails}).
				Where(squirrel.NotEq{"email": current.AdminEmail}))
			if err != nil {
				return fmt.Errorf("remove members: %w", err)
			}
		}
		if err := bumpGroupVersion(ctx, q, groupID); err != nil {
			return err
		}
		group, err = loadGroup(ctx, q, groupID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroups returns the groups a member belongs to, one page at a time.
func (s *PostgresStore) ListGroups(ctx context.Context, filter storage.GroupFilter) ([]*models.Group, int, error) {
	where := squirrel.And{
		squirrel.Expr("EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.email = ?)", filter.MemberEmail),
	}
	if filter.IsPaid != nil {
		where = append(where, squirrel.Eq{"g.payment_is_paid": *filter.IsPaid})
	}

	var total int
	if err := queryRow(ctx, s.db, psql.Select("COUNT(*)").From("groups g").Where(where)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}

	order := "DESC"
	if filter.Page.Sort == models.SortOldest {
		order = "ASC"
	}
	rows, err := query(ctx, s.db, psql.Select(groupColumns...).From("groups g").
		Where(where).
		OrderBy("g.created_at "+order, "g.id "+order).
		Limit(uint64(filter.Page.Limit)).
		Offset(uint64(filter.Page.Offset())))
	if err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Group, error) {
		return scanGroup(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan groups: %w", err)
	}

	if err := attachMembers(ctx, s.db, groups); err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// SettleGroup marks every unsettled expense settled and resets the payment
// status. The group row is locked for the duration of the transaction.
func (s *PostgresStore) SettleGroup(ctx context.Context, groupID string, settledAt int64) (int, *models.Group, error) {
	var (
		settled int64
		group   *models.Group
	)
	err := s.inTx(ctx, func(q Querier) error {
		current, err := loadGroup(ctx, q, groupID, true)
		if err != nil {
			return err
		}

		settled, err = exec(ctx, q, psql.Update("expenses").
			Set("is_settled", true).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"group_id": groupID, "is_settled": false}))
		if err != nil {
			return fmt.Errorf("settle expenses: %w", err)
		}

		if settled > 0 || !current.PaymentStatus.IsPaid {
			_, err = exec(ctx, q, psql.Update("groups").
				Set("payment_amount", 0.0).
				Set("payment_is_paid", true).
				Set("payment_last_settled_at", settledAt).
				Set("version", squirrel.Expr("version + 1")).
				Where(squirrel.Eq{"id": groupID}))
			if err != nil {
				return fmt.Errorf("reset payment status: %w", err)
			}
		}

		group, err = loadGroup(ctx, q, groupID, false)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return int(settled), group, nil
}

func scanGroup(row pgx.Row) (*models.Group, error) {
	g := &models.Group{}
	err := row.Scan(
		&g.ID, &g.Name, &g.Description, &g.AdminEmail,
		&g.PaymentStatus.Amount, &g.PaymentStatus.Currency,
		&g.PaymentStatus.LastSettledAt, &g.PaymentStatus.IsPaid,
		&g.Version, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// loadGroup reads a group and its members. forUpdate locks the group row.
func loadGroup(ctx context.Context, q Querier, groupID string, forUpdate bool) (*models.Group, error) {
	b := psql.Select(groupColumns...).From("groups g").Where(squirrel.Eq{"g.id": groupID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	g, err := scanGroup(queryRow(ctx, q, b))
	if err != nil {
		return nil, mapError(err, "group", groupID)
	}
	if err := attachMembers(ctx, q, []*models.Group{g}); err != nil {
		return nil, err
	}
	return g, nil
}

// attachMembers fills MembersEmail for every group with one query.
func attachMembers(ctx context.Context, q Querier, groups []*models.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := make([]string, len(groups))
	byID := make(map[string]*models.Group, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
		g.MembersEmail = []string{}
		byID[g.ID] = g
	}

	rows, err := query(ctx, q, psql.Select("group_id", "email").From("group_members").
		Where(squirrel.Eq{"group_id": ids}).
		OrderBy("seq"))
	if err != nil {
		return fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID, email string
		if err := rows.Scan(&groupID, &email); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		if g, ok := byID[groupID]; ok {
			g.MembersEmail = append(g.MembersEmail, email)
		}
	}
	return rows.Err()
}

func insertMembers(ctx context.Context, q Querier, groupID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	b := psql.Insert("group_members").Columns("group_id", "email")
	for _, email := range emails {
		b = b.Values(groupID, email)
	}
	if _, err := exec(ctx, q, b.Suffix("ON CONFLICT (group_id, email) DO NOTHING")); err != nil {
		return mapError(err, "group member", groupID)
	}
	return nil
}

func bumpGroupVersion(ctx context.Context, q Querier, groupID string) error {
	_, err := exec(ctx, q, psql.Update("groups").
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": groupID}))
	if err != nil {
		return fmt.Errorf("bump group version: %w", err)
	}
	return nil
}
