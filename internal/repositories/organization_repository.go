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

var ErrOrganizationNotFound = errors.New("organization not found")

// OrganizationRepository handles organization persistence
type OrganizationRepository struct {
	db *Database
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *Database) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	return r.create(ctx, r.db.Pool, org)
}

// CreateTx inserts a new organization within an existing transaction
func (r *OrganizationRepository) CreateTx(ctx context.Context, tx pgx.Tx, org *models.Organization) error {
	return r.create(ctx, tx, org)
}

func (r *OrganizationRepository) create(ctx context.Context, q Execer, org *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name, industry, description, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = time.Now()

	_, err := q.Exec(ctx, query,
		org.ID, org.Name, org.Industry, org.Description, org.AdminID, org.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT id, name, industry, description, admin_id, created_at
		FROM organizations
		WHERE id = $1`

	var org models.Organization
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.Industry, &org.Description, &org.AdminID, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// List retrieves all organizations, newest first
func (r *OrganizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	query := `
		SELECT id, name, industry, description, admin_id, created_at
		FROM organizations
		ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Industry, &org.Description,
			&org.AdminID, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}

	return orgs, rows.Err()
}
