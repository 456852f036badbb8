package records

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/internal/analysis"
	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/queue"
	"github.com/finaudit/audit-engine/internal/repositories"
	"github.com/finaudit/audit-engine/internal/storage"
)

var (
	ErrResetNotAllowed   = errors.New("record can only be reset from completed or failed status")
	ErrRecordNotAnalyzed = errors.New("record has no analysis results")
	ErrInvalidFlagID     = errors.New("invalid flag identifier")
	ErrInvalidFlagStatus = errors.New("invalid flag status")
)

// Service coordinates record uploads, lifecycle transitions and review
type Service struct {
	recordRepo   *repositories.RecordRepository
	activityRepo *repositories.ActivityRepository
	store        *storage.Store
	streamClient *queue.RedisStreamClient
	engine       *analysis.Engine
}

// NewService creates a new record service
func NewService(
	recordRepo *repositories.RecordRepository,
	activityRepo *repositories.ActivityRepository,
	store *storage.Store,
	streamClient *queue.RedisStreamClient,
	engine *analysis.Engine,
) *Service {
	return &Service{
		recordRepo:   recordRepo,
		activityRepo: activityRepo,
		store:        store,
		streamClient: streamClient,
		engine:       engine,
	}
}

// Upload stores the file bytes, inserts a pending record and publishes an
// analysis job. The stored object is removed again when the insert fails,
// so storage never holds orphaned files.
func (s *Service) Upload(ctx context.Context, orgID, userID uuid.UUID, fileName string, data []byte) (*models.FinancialRecord, error) {
	recordID := uuid.New()
	objectKey := fmt.Sprintf("%s/%s-%s", orgID, recordID, fileName)

	if err := s.store.Put(ctx, objectKey, data); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	record := &models.FinancialRecord{
		ID:             recordID,
		OrganizationID: orgID,
		UploadedBy:     userID,
		FileName:       fileName,
		FileType:       FileTypeFor(fileName),
		FilePath:       objectKey,
		FileSize:       int64(len(data)),
		Status:         models.RecordStatusPending,
	}

	if err := s.recordRepo.Create(ctx, record); err != nil {
		if removeErr := s.store.Remove(ctx, objectKey); removeErr != nil {
			log.Error().Err(removeErr).Str("object_key", objectKey).Msg("Failed to roll back stored object")
		}
		return nil, err
	}

	if _, err := s.streamClient.Publish(ctx, &models.RecordEvent{
		RecordID:       record.ID.String(),
		OrganizationID: orgID.String(),
		FileType:       record.FileType,
		FilePath:       record.FilePath,
		Timestamp:      record.CreatedAt,
	}); err != nil {
		// The record stays pending; a manual analyze call can still pick
		// it up.
		log.Error().Err(err).Str("record_id", record.ID.String()).Msg("Failed to publish analysis job")
	}

	s.logActivity(ctx, orgID, userID, models.ActivityRecordUploaded, models.JSONB{
		"record_id": record.ID.String(),
		"file_name": record.FileName,
		"file_type": record.FileType,
	})

	log.Info().
		Str("record_id", record.ID.String()).
		Str("organization_id", orgID.String()).
		Str("file_type", record.FileType).
		Int64("file_size", record.FileSize).
		Msg("Record uploaded")

	return record, nil
}

// Get retrieves a record scoped to the caller's organization
func (s *Service) Get(ctx context.Context, orgID, recordID uuid.UUID) (*models.FinancialRecord, error) {
	record, err := s.recordRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.OrganizationID != orgID {
		return nil, repositories.ErrRecordNotFound
	}
	return record, nil
}

// List retrieves an organization's records
func (s *Service) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.FinancialRecord, int64, error) {
	records, err := s.recordRepo.ListByOrganization(ctx, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.recordRepo.CountByOrganization(ctx, orgID)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Analyze runs the rule engine against a record synchronously
func (s *Service) Analyze(ctx context.Context, orgID, userID, recordID uuid.UUID) (*models.AnalysisResult, error) {
	if _, err := s.Get(ctx, orgID, recordID); err != nil {
		return nil, err
	}

	result, err := s.engine.AnalyzeRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, orgID, userID, models.ActivityRecordAnalyzed, models.JSONB{
		"record_id":  recordID.String(),
		"risk_level": result.OverallRiskLevel,
		"anomalies":  len(result.Anomalies),
	})

	return result, nil
}

// Reset moves a completed or failed record back to pending and requeues
// it for analysis, clearing the previous results.
func (s *Service) Reset(ctx context.Context, orgID, userID, recordID uuid.UUID) (*models.FinancialRecord, error) {
	record, err := s.Get(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}

	if record.Status != models.RecordStatusCompleted && record.Status != models.RecordStatusFailed {
		return nil, ErrResetNotAllowed
	}

	if err := s.recordRepo.ResetToPending(ctx, recordID); err != nil {
		return nil, err
	}

	if _, err := s.streamClient.Publish(ctx, &models.RecordEvent{
		RecordID:       record.ID.String(),
		OrganizationID: orgID.String(),
		FileType:       record.FileType,
		FilePath:       record.FilePath,
		Timestamp:      record.CreatedAt,
	}); err != nil {
		log.Error().Err(err).Str("record_id", recordID.String()).Msg("Failed to publish analysis job after reset")
	}

	s.logActivity(ctx, orgID, userID, models.ActivityRecordReset, models.JSONB{
		"record_id":       recordID.String(),
		"previous_status": record.Status,
	})

	return s.recordRepo.GetByID(ctx, recordID)
}

// Delete removes the stored object and then the record row
func (s *Service) Delete(ctx context.Context, orgID, userID, recordID uuid.UUID) error {
	record, err := s.Get(ctx, orgID, recordID)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, record.FilePath); err != nil {
		log.Warn().Err(err).Str("object_key", record.FilePath).Msg("Failed to remove stored object")
	}

	if err := s.recordRepo.Delete(ctx, recordID); err != nil {
		return err
	}

	s.logActivity(ctx, orgID, userID, models.ActivityRecordDeleted, models.JSONB{
		"record_id": recordID.String(),
		"file_name": record.FileName,
	})

	return nil
}

// UpdateFlagStatus changes the review status of one anomaly or compliance
// issue inside a record's stored analysis results. Flags are addressed as
// "<record-id>-anomaly-<index>" or "<record-id>-compliance-<index>".
func (s *Service) UpdateFlagStatus(ctx context.Context, orgID, userID, recordID uuid.UUID, flagID, status string) (*models.AnalysisResult, error) {
	if status != models.FlagStatusOpen && status != models.FlagStatusReviewed && status != models.FlagStatusResolved {
		return nil, ErrInvalidFlagStatus
	}

	record, err := s.Get(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}
	if record.AnalysisResults == nil {
		return nil, ErrRecordNotAnalyzed
	}

	kind, index, err := parseFlagID(recordID, flagID)
	if err != nil {
		return nil, err
	}

	results := record.AnalysisResults
	switch kind {
	case "anomaly":
		if index >= len(results.Anomalies) {
			return nil, ErrInvalidFlagID
		}
		results.Anomalies[index].Status = status
	case "compliance":
		if index >= len(results.ComplianceIssues) {
			return nil, ErrInvalidFlagID
		}
		results.ComplianceIssues[index].Status = status
	}

	if err := s.recordRepo.UpdateAnalysisResults(ctx, recordID, results); err != nil {
		return nil, err
	}

	s.logActivity(ctx, orgID, userID, models.ActivityFlagReviewed, models.JSONB{
		"record_id": recordID.String(),
		"flag_id":   flagID,
		"status":    status,
	})

	return results, nil
}

// ListActivities retrieves the organization activity feed
func (s *Service) ListActivities(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Activity, error) {
	return s.activityRepo.ListByOrganization(ctx, orgID, limit)
}

func (s *Service) logActivity(ctx context.Context, orgID, userID uuid.UUID, action string, details models.JSONB) {
	activity := &models.Activity{
		OrganizationID: orgID,
		UserID:         userID,
		Action:         action,
		Details:        details,
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to record activity")
	}
}

// FileTypeFor classifies a file by extension; anything that is not a PDF
// or spreadsheet is treated as CSV.
func FileTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return models.FileTypePDF
	case ".xls", ".xlsx":
		return models.FileTypeExcel
	default:
		return models.FileTypeCSV
	}
}

// parseFlagID splits "<record-id>-<kind>-<index>" and validates it against
// the record being updated.
func parseFlagID(recordID uuid.UUID, flagID string) (string, int, error) {
	prefix := recordID.String() + "-"
	rest, ok := strings.CutPrefix(flagID, prefix)
	if !ok {
		return "", 0, ErrInvalidFlagID
	}

	kind, indexStr, ok := strings.Cut(rest, "-")
	if !ok || (kind != "anomaly" && kind != "compliance") {
		return "", 0, ErrInvalidFlagID
	}

	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		return "", 0, ErrInvalidFlagID
	}

	return kind, index, nil
}
