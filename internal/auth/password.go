package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStorage defines the interface for user persistence operations.
type UserStorage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// RoleSet reports whether a role name is known.
type RoleSet interface {
	HasRole(role string) bool
}

// Provisioner creates accounts on behalf of an admin and seeds the bootstrap admin.
type Provisioner struct {
	storage        UserStorage
	roles          RoleSet
	initialCredits int
	now            func() time.Time
}

// NewProvisioner creates a provisioner. Accounts it creates start with
// initialCredits credits.
func NewProvisioner(storage UserStorage, roles RoleSet, initialCredits int) *Provisioner {
	return &Provisioner{
		storage:        storage,
		roles:          roles,
		initialCredits: initialCredits,
		now:            time.Now,
	}
}

// ProvisionInput is the payload of Provision.
type ProvisionInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Provisioned is a newly created account and its one-time temporary password.
type Provisioned struct {
	User              *models.User `json:"user"`
	TemporaryPassword string       `json:"temporaryPassword"`
}

// Provision creates a delegated account owned by admin.
func (p *Provisioner) Provision(ctx context.Context, admin models.Identity, in ProvisionInput) (*Provisioned, error) {
	email := models.NormalizeEmail(in.Email)
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if !strings.Contains(email, "@") {
		return nil, models.NewValidationError("email", "is not a valid email")
	}
	if !p.roles.HasRole(role) {
		return nil, models.NewValidationError("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	if _, err := p.storage.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("user %s: %w", email, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	password := rand.Text()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           id.NewUser(),
		Email:        email,
		Role:         role,
		AdminID:      admin.ID,
		Credits:      p.initialCredits,
		PasswordHash: string(hashedPassword),
		CreatedAt:    p.now().Unix(),
	}
	if err := p.storage.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User provisioned", "user_id", user.ID, "role", role, "admin_id", admin.ID)
	return &Provisioned{User: user, TemporaryPassword: password}, nil
}

// Profile returns the stored account of userID.
func (p *Provisioner) Profile(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, models.NewValidationError("userId", "is required")
	}
	user, err := p.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet
// and returns the stored account either way.
func (p *Provisioner) EnsureAdmin(ctx context.Context, email string, credits int) (*models.User, error) {
	email = models.NormalizeEmail(email)
	existing, err := p.storage.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user := &models.User{
		ID:        id.NewUser(),
		Email:     email,
		Role:      models.RoleAdmin,
		Credits:   credits,
		CreatedAt: p.now().Unix(),
	}
	if err := p.storage.CreateUser(ctx, user); err != nil {
		// Another instance may have won the race.
		if errors.Is(err, models.ErrConflict) {
			return p.storage.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	slog.Info("Bootstrap admin created", "user_id", user.ID, "email", email)
	return user, nil
}

// CheckPassword compares a candidate password with the account's hash.
func CheckPassword(user *models.User, password string) error {
	if user.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
