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
	ErrRecordNotFound   = errors.New("financial record not found")
	ErrRecordNotPending = errors.New("financial record is not in pending status")
)

// RecordRepository handles financial record persistence
type RecordRepository struct {
	db *Database
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *Database) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts a new financial record
func (r *RecordRepository) Create(ctx context.Context, record *models.FinancialRecord) error {
	query := `
		INSERT INTO financial_records (
			id, organization_id, uploaded_by, file_name, file_type, file_path,
			file_size, status, analysis_results, risk_flags, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = models.RecordStatusPending
	}

	_, err := r.db.Pool.Exec(ctx, query,
		record.ID, record.OrganizationID, record.UploadedBy, record.FileName,
		record.FileType, record.FilePath, record.FileSize, record.Status,
		record.AnalysisResults, record.RiskFlags, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create financial record: %w", err)
	}

	return nil
}

// GetByID retrieves a financial record by its ID
func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FinancialRecord, error) {
	query := `
		SELECT id, organization_id, uploaded_by, file_name, file_type, file_path,
		       file_size, status, analysis_results, risk_flags, created_at, updated_at
		FROM financial_records
		WHERE id = $1`

	record, err := r.scanRecord(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get financial record: %w", err)
	}

	return record, nil
}

// ListByOrganization retrieves records for an organization, newest first
func (r *RecordRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.FinancialRecord, error) {
	query := `
		SELECT id, organization_id, uploaded_by, file_name, file_type, file_path,
		       file_size, status, analysis_results, risk_flags, created_at, updated_at
		FROM financial_records
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list financial records: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

// List retrieves records across all organizations, newest first
func (r *RecordRepository) List(ctx context.Context, limit, offset int) ([]*models.FinancialRecord, error) {
	query := `
		SELECT id, organization_id, uploaded_by, file_name, file_type, file_path,
		       file_size, status, analysis_results, risk_flags, created_at, updated_at
		FROM financial_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list financial records: %w", err)
	}
	defer rows.Close()

	return r.scanRecords(rows)
}

// CountByOrganization returns the number of records for an organization
func (r *RecordRepository) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM financial_records WHERE organization_id = $1`, orgID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count financial records: %w", err)
	}
	return count, nil
}

// MarkAnalyzing claims a pending record for analysis. The status predicate
// makes the claim atomic: two workers racing on the same record cannot both
// succeed.
func (r *RecordRepository) MarkAnalyzing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE financial_records
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.Pool.Exec(ctx, query,
		models.RecordStatusAnalyzing, time.Now(), id, models.RecordStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark record analyzing: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotPending
	}

	return nil
}

// CompleteAnalysis stores the analysis outcome and moves the record to
// completed in a single statement.
func (r *RecordRepository) CompleteAnalysis(ctx context.Context, id uuid.UUID, results *models.AnalysisResult, riskFlags models.JSONB) error {
	query := `
		UPDATE financial_records
		SET status = $1, analysis_results = $2, risk_flags = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Pool.Exec(ctx, query,
		models.RecordStatusCompleted, results, riskFlags, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// MarkFailed moves a record to failed status
func (r *RecordRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.updateStatus(ctx, id, models.RecordStatusFailed)
}

// ResetToPending clears analysis state so a record can be analyzed again
func (r *RecordRepository) ResetToPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE financial_records
		SET status = $1, analysis_results = NULL, risk_flags = NULL, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Pool.Exec(ctx, query, models.RecordStatusPending, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reset record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// UpdateAnalysisResults rewrites the stored analysis results, used when a
// reviewer changes a flag status.
func (r *RecordRepository) UpdateAnalysisResults(ctx context.Context, id uuid.UUID, results *models.AnalysisResult) error {
	query := `
		UPDATE financial_records
		SET analysis_results = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Pool.Exec(ctx, query, results, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update analysis results: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// Delete removes a financial record
func (r *RecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM financial_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete financial record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// CountByStatus returns record counts grouped by status for an organization
func (r *RecordRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM financial_records
		WHERE organization_id = $1
		GROUP BY status`

	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// DailyUploadVolume returns per-day upload counts for the last N days
func (r *RecordRepository) DailyUploadVolume(ctx context.Context, orgID uuid.UUID, days int) ([]models.DailyVolume, error) {
	query := `
		SELECT DATE(created_at) AS day, COUNT(*)
		FROM financial_records
		WHERE organization_id = $1 AND created_at >= NOW() - ($2 || ' days')::INTERVAL
		GROUP BY day
		ORDER BY day`

	rows, err := r.db.Pool.Query(ctx, query, orgID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload volume: %w", err)
	}
	defer rows.Close()

	var volumes []models.DailyVolume
	for rows.Next() {
		var v models.DailyVolume
		if err := rows.Scan(&v.Day, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan upload volume: %w", err)
		}
		volumes = append(volumes, v)
	}

	return volumes, rows.Err()
}

func (r *RecordRepository) updateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE financial_records SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (r *RecordRepository) scanRecord(row pgx.Row) (*models.FinancialRecord, error) {
	var record models.FinancialRecord
	err := row.Scan(
		&record.ID, &record.OrganizationID, &record.UploadedBy, &record.FileName,
		&record.FileType, &record.FilePath, &record.FileSize, &record.Status,
		&record.AnalysisResults, &record.RiskFlags, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RecordRepository) scanRecords(rows pgx.Rows) ([]*models.FinancialRecord, error) {
	var records []*models.FinancialRecord
	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan financial record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
