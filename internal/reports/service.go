package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/repositories"
)

var ErrRecordNotCompleted = errors.New("record has no completed analysis to report on")

// Service manages audit report persistence and generation
type Service struct {
	reportRepo   *repositories.ReportRepository
	recordRepo   *repositories.RecordRepository
	activityRepo *repositories.ActivityRepository
}

// NewService creates a new report service
func NewService(
	reportRepo *repositories.ReportRepository,
	recordRepo *repositories.RecordRepository,
	activityRepo *repositories.ActivityRepository,
) *Service {
	return &Service{
		reportRepo:   reportRepo,
		recordRepo:   recordRepo,
		activityRepo: activityRepo,
	}
}

// Save persists a report authored by the caller
func (s *Service) Save(ctx context.Context, report *models.AuditReport) error {
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return err
	}

	s.logActivity(ctx, report.OrganizationID, report.GeneratedBy, models.JSONB{
		"report_id": report.ID.String(),
		"title":     report.Title,
	})

	return nil
}

// Get retrieves a report scoped to the caller's organization
func (s *Service) Get(ctx context.Context, orgID, reportID uuid.UUID) (*models.AuditReport, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.OrganizationID != orgID {
		return nil, repositories.ErrReportNotFound
	}
	return report, nil
}

// List retrieves an organization's reports
func (s *Service) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditReport, error) {
	return s.reportRepo.ListByOrganization(ctx, orgID, limit, offset)
}

// Generate builds a report from a completed record's stored analysis
// results and persists it as a draft. The body is fully determined by the
// stored results.
func (s *Service) Generate(ctx context.Context, orgID, userID, recordID uuid.UUID, title string) (*models.AuditReport, error) {
	record, err := s.recordRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.OrganizationID != orgID {
		return nil, repositories.ErrRecordNotFound
	}
	if record.Status != models.RecordStatusCompleted || record.AnalysisResults == nil {
		return nil, ErrRecordNotCompleted
	}

	if title == "" {
		title = fmt.Sprintf("Audit Report - %s", record.FileName)
	}

	report := &models.AuditReport{
		OrganizationID:  orgID,
		GeneratedBy:     userID,
		Title:           title,
		ReportData:      BuildReportData(record),
		Recommendations: recommendations(record.AnalysisResults),
		Status:          models.ReportStatusDraft,
	}

	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.logActivity(ctx, orgID, userID, models.JSONB{
		"report_id": report.ID.String(),
		"record_id": recordID.String(),
		"title":     report.Title,
	})

	log.Info().
		Str("report_id", report.ID.String()).
		Str("record_id", recordID.String()).
		Msg("Audit report generated")

	return report, nil
}

// Finalize moves a draft report to final status
func (s *Service) Finalize(ctx context.Context, orgID, reportID uuid.UUID) (*models.AuditReport, error) {
	if _, err := s.Get(ctx, orgID, reportID); err != nil {
		return nil, err
	}
	if err := s.reportRepo.UpdateStatus(ctx, reportID, models.ReportStatusFinal); err != nil {
		return nil, err
	}
	return s.reportRepo.GetByID(ctx, reportID)
}

// Delete removes a report
func (s *Service) Delete(ctx context.Context, orgID, reportID uuid.UUID) error {
	if _, err := s.Get(ctx, orgID, reportID); err != nil {
		return err
	}
	return s.reportRepo.Delete(ctx, reportID)
}

// BuildReportData assembles the four report sections from a record's
// stored analysis results.
func BuildReportData(record *models.FinancialRecord) models.JSONB {
	results := record.AnalysisResults

	anomalies := make([]map[string]interface{}, 0, len(results.Anomalies))
	for _, a := range results.Anomalies {
		anomalies = append(anomalies, map[string]interface{}{
			"type":             a.Type,
			"description":      a.Description,
			"severity":         a.Severity,
			"record_reference": a.RecordReference,
			"status":           a.Status,
		})
	}

	issues := make([]map[string]interface{}, 0, len(results.ComplianceIssues))
	for _, c := range results.ComplianceIssues {
		issues = append(issues, map[string]interface{}{
			"type":           c.Type,
			"description":    c.Description,
			"severity":       c.Severity,
			"recommendation": c.Recommendation,
			"status":         c.Status,
		})
	}

	severityCounts := map[string]int{}
	for _, a := range results.Anomalies {
		severityCounts[a.Severity]++
	}

	return models.JSONB{
		"record_id": record.ID.String(),
		"file_name": record.FileName,
		"file_type": record.FileType,
		"executive_summary": fmt.Sprintf(
			"Analysis of %s identified %d potential anomalies. Overall risk level: %s.",
			record.FileName, len(results.Anomalies), results.OverallRiskLevel),
		"detailed_analysis": map[string]interface{}{
			"summary":   results.Summary,
			"anomalies": anomalies,
		},
		"risk_assessment": map[string]interface{}{
			"overall_risk_level": results.OverallRiskLevel,
			"high_severity":      severityCounts[models.SeverityHigh],
			"medium_severity":    severityCounts[models.SeverityMedium],
			"low_severity":       severityCounts[models.SeverityLow],
		},
		"compliance": map[string]interface{}{
			"issues": issues,
		},
	}
}

// recommendations derives a standing recommendation line per risk level
func recommendations(results *models.AnalysisResult) string {
	switch results.OverallRiskLevel {
	case models.SeverityHigh:
		return "Immediate review of flagged transactions is recommended. High-severity anomalies indicate possible duplicate postings that require manual reconciliation."
	case models.SeverityMedium:
		return "Review flagged high-value transactions against supporting documentation and confirm authorization."
	default:
		return "No significant irregularities detected. Maintain standard audit cadence."
	}
}

func (s *Service) logActivity(ctx context.Context, orgID, userID uuid.UUID, details models.JSONB) {
	activity := &models.Activity{
		OrganizationID: orgID,
		UserID:         userID,
		Action:         models.ActivityReportGenerated,
		Details:        details,
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		log.Warn().Err(err).Msg("Failed to record activity")
	}
}
