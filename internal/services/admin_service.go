package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/repositories"
)

// AdminService handles organization and user administration
type AdminService struct {
	db         *repositories.Database
	orgRepo    *repositories.OrganizationRepository
	userRepo   *repositories.UserRepository
	recordRepo *repositories.RecordRepository
}

// NewAdminService creates a new admin service
func NewAdminService(
	db *repositories.Database,
	orgRepo *repositories.OrganizationRepository,
	userRepo *repositories.UserRepository,
	recordRepo *repositories.RecordRepository,
) *AdminService {
	return &AdminService{
		db:         db,
		orgRepo:    orgRepo,
		userRepo:   userRepo,
		recordRepo: recordRepo,
	}
}

// CreateOrganizationRequest represents an organization creation request
type CreateOrganizationRequest struct {
	Name        string `json:"name" binding:"required"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
}

// CreateOrganization creates an organization owned by the calling admin
// and assigns the admin to it. Both writes commit together, so an
// organization never exists without its admin membership.
func (s *AdminService) CreateOrganization(ctx context.Context, adminID uuid.UUID, req *CreateOrganizationRequest) (*models.Organization, error) {
	org := &models.Organization{
		Name:        req.Name,
		Industry:    req.Industry,
		Description: req.Description,
		AdminID:     adminID,
	}

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.orgRepo.CreateTx(ctx, tx, org); err != nil {
			return err
		}
		if err := s.userRepo.UpdateOrganizationTx(ctx, tx, adminID, org.ID); err != nil {
			return fmt.Errorf("failed to assign admin to organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return org, nil
}

// ListOrganizations lists all organizations
func (s *AdminService) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	return s.orgRepo.List(ctx)
}

// GetOrganization retrieves one organization
func (s *AdminService) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.orgRepo.GetByID(ctx, orgID)
}

// ListUsers lists the members of an organization
func (s *AdminService) ListUsers(ctx context.Context, orgID uuid.UUID) ([]UserResponse, error) {
	profiles, err := s.userRepo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	users := make([]UserResponse, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, toUserResponse(p))
	}
	return users, nil
}

// SetUserStatus activates or deactivates a user
func (s *AdminService) SetUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	if status != models.ProfileStatusActive && status != models.ProfileStatusInactive {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.userRepo.UpdateStatus(ctx, userID, status)
}

// ListRecords lists recent records across all organizations, for
// platform-wide oversight.
func (s *AdminService) ListRecords(ctx context.Context, limit, offset int) ([]*models.FinancialRecord, error) {
	return s.recordRepo.List(ctx, limit, offset)
}

// AssignUser places a user into an organization
func (s *AdminService) AssignUser(ctx context.Context, userID, orgID uuid.UUID) error {
	if _, err := s.orgRepo.GetByID(ctx, orgID); err != nil {
		return err
	}
	return s.userRepo.UpdateOrganization(ctx, userID, orgID)
}
