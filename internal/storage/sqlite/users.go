package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

const userColumns = `id, email, role, admin_id, credits, password_hash, created_at`

// CreateUser inserts a new user into the database.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Role,
		user.AdminID,
		user.Credits,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		return mapError(err, "user", user.Email)
	}

	return nil
}

// GetUserByEmail retrieves a user by their email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user", email)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user", id)
	}
	return user, nil
}

// DecrementCredits spends one credit with a single conditional update.
func (s *SQLiteStore) DecrementCredits(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET credits = credits - 1 WHERE id = ? AND credits > 0 RETURNING credits`,
		userID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetUserByID(ctx, userID); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("user %s: %w", userID, models.ErrInsufficientCredits)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement credits: %w", err)
	}
	return remaining, nil
}

// IncrementCredits adds amount credits.
func (s *SQLiteStore) IncrementCredits(ctx context.Context, userID string, amount int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ? RETURNING credits`,
		amount, userID,
	).Scan(&total)
	if err != nil {
		return 0, mapError(err, "user", userID)
	}
	return total, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
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
