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

var ErrReportNotFound = errors.New("audit report not found")

// ReportRepository handles audit report persistence
type ReportRepository struct {
	db *Database
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *Database) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new audit report
func (r *ReportRepository) Create(ctx context.Context, report *models.AuditReport) error {
	query := `
		INSERT INTO audit_reports (
			id, organization_id, generated_by, title, report_data,
			recommendations, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.CreatedAt = time.Now()
	if report.Status == "" {
		report.Status = models.ReportStatusDraft
	}

	_, err := r.db.Pool.Exec(ctx, query,
		report.ID, report.OrganizationID, report.GeneratedBy, report.Title,
		report.ReportData, report.Recommendations, report.Status, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit report: %w", err)
	}

	return nil
}

// GetByID retrieves an audit report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditReport, error) {
	query := `
		SELECT id, organization_id, generated_by, title, report_data,
		       recommendations, status, created_at
		FROM audit_reports
		WHERE id = $1`

	var report models.AuditReport
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&report.ID, &report.OrganizationID, &report.GeneratedBy, &report.Title,
		&report.ReportData, &report.Recommendations, &report.Status, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get audit report: %w", err)
	}

	return &report, nil
}

// ListByOrganization retrieves reports for an organization, newest first
func (r *ReportRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditReport, error) {
	query := `
		SELECT id, organization_id, generated_by, title, report_data,
		       recommendations, status, created_at
		FROM audit_reports
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.AuditReport
	for rows.Next() {
		var report models.AuditReport
		if err := rows.Scan(&report.ID, &report.OrganizationID, &report.GeneratedBy,
			&report.Title, &report.ReportData, &report.Recommendations,
			&report.Status, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit report: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// UpdateStatus finalizes or reverts a report
func (r *ReportRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE audit_reports SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrReportNotFound
	}

	return nil
}

// Delete removes an audit report
func (r *ReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM audit_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete audit report: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrReportNotFound
	}

	return nil
}
