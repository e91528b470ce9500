package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupledger/internal/models"
)

var userColumns = []string{"id", "email", "role", "admin_id", "credits", "password_hash", "created_at"}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	_, err := exec(ctx, s.db, psql.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Email, user.Role, user.AdminID, user.Credits, user.PasswordHash, user.CreatedAt))
	if err != nil {
		return mapError(err, "user", user.Email)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(queryRow(ctx, s.db, psql.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id})))
	if err != nil {
		return nil, mapError(err, "user", id)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(queryRow(ctx, s.db, psql.Select(userColumns...).From("users").Where(squirrel.Eq{"email": email})))
	if err != nil {
		return nil, mapError(err, "user", email)
	}
	return user, nil
}

// DecrementCredits spends one credit with a single conditional update.
func (s *PostgresStore) DecrementCredits(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := queryRow(ctx, s.db, psql.Update("users").
		Set("credits", squirrel.Expr("credits - 1")).
		Where(squirrel.Eq{"id": userID}).
		Where("credits > 0").
		Suffix("RETURNING credits")).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.GetUserByID(ctx, userID); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("user %s: %w", userID, models.ErrInsufficientCredits)
	}
	if err != nil {
		return 0, mapError(err, "user", userID)
	}
	return remaining, nil
}

// IncrementCredits adds amount credits.
func (s *PostgresStore) IncrementCredits(ctx context.Context, userID string, amount int) (int, error) {
	var total int
	err := queryRow(ctx, s.db, psql.Update("users").
		Set("credits", squirrel.Expr("credits + ?", amount)).
		Where(squirrel.Eq{"id": userID}).
		Suffix("RETURNING credits")).Scan(&total)
	if err != nil {
		return 0, mapError(err, "user", userID)
	}
	return total, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.AdminID,
		&user.Credits,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
