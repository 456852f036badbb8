package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finaudit/audit-engine/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserRepository handles profile persistence
type UserRepository struct {
	db *Database
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new profile
func (r *UserRepository) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (
			id, email, full_name, password_hash, phone, role, status,
			organization_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.Status == "" {
		profile.Status = models.ProfileStatusActive
	}

	_, err := r.db.Pool.Exec(ctx, query,
		profile.ID, profile.Email, profile.FullName, profile.PasswordHash,
		profile.Phone, profile.Role, profile.Status, profile.OrganizationID,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, email, full_name, password_hash, phone, role, status,
		       organization_id, created_at, updated_at
		FROM profiles
		WHERE id = $1`

	return r.scanProfile(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a profile by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `
		SELECT id, email, full_name, password_hash, phone, role, status,
		       organization_id, created_at, updated_at
		FROM profiles
		WHERE email = $1`

	return r.scanProfile(r.db.Pool.QueryRow(ctx, query, email))
}

// EmailExists checks whether an email is already registered
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// ListByOrganization retrieves all profiles in an organization
func (r *UserRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Profile, error) {
	query := `
		SELECT id, email, full_name, password_hash, phone, role, status,
		       organization_id, created_at, updated_at
		FROM profiles
		WHERE organization_id = $1
		ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		profile, err := r.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	return profiles, rows.Err()
}

// UpdateStatus activates or deactivates a profile
func (r *UserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE profiles SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update profile status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateOrganization assigns a profile to an organization
func (r *UserRepository) UpdateOrganization(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	return r.updateOrganization(ctx, r.db.Pool, id, orgID)
}

// UpdateOrganizationTx assigns a profile to an organization within an
// existing transaction
func (r *UserRepository) UpdateOrganizationTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, orgID uuid.UUID) error {
	return r.updateOrganization(ctx, tx, id, orgID)
}

func (r *UserRepository) updateOrganization(ctx context.Context, q Execer, id uuid.UUID, orgID uuid.UUID) error {
	result, err := q.Exec(ctx,
		`UPDATE profiles SET organization_id = $1, updated_at = $2 WHERE id = $3`,
		orgID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update profile organization: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) scanProfile(row pgx.Row) (*models.Profile, error) {
	var profile models.Profile
	err := row.Scan(
		&profile.ID, &profile.Email, &profile.FullName, &profile.PasswordHash,
		&profile.Phone, &profile.Role, &profile.Status, &profile.OrganizationID,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return &profile, nil
}
