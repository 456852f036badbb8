package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/internal/extract"
	"github.com/finaudit/audit-engine/internal/models"
)

// pdfPlaceholderSummary is stored for PDF uploads, which have no automated
// analysis path.
const pdfPlaceholderSummary = "Automated analysis for PDF files is not supported in this version. The record has been marked as complete."

// RecordStore is the record persistence surface the engine needs
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.FinancialRecord, error)
	MarkAnalyzing(ctx context.Context, id uuid.UUID) error
	CompleteAnalysis(ctx context.Context, id uuid.UUID, results *models.AnalysisResult, riskFlags models.JSONB) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// BlobStore fetches uploaded file contents
type BlobStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Engine runs rule-based analysis over uploaded financial records
type Engine struct {
	records RecordStore
	blobs   BlobStore
	cfg     Config
}

// NewEngine creates a new analysis engine
func NewEngine(records RecordStore, blobs BlobStore, cfg Config) *Engine {
	return &Engine{
		records: records,
		blobs:   blobs,
		cfg:     cfg,
	}
}

// AnalyzeRecord claims a pending record, runs the rule set against its
// contents and stores the outcome. Claiming is an atomic conditional
// update, so a record already claimed, completed or failed is rejected
// without mutation.
func (e *Engine) AnalyzeRecord(ctx context.Context, recordID uuid.UUID) (*models.AnalysisResult, error) {
	startTime := time.Now()

	record, err := e.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	if err := e.records.MarkAnalyzing(ctx, recordID); err != nil {
		return nil, err
	}

	result, err := e.analyze(ctx, record)
	if err != nil {
		if failErr := e.records.MarkFailed(ctx, recordID); failErr != nil {
			log.Error().Err(failErr).Str("record_id", recordID.String()).Msg("Failed to mark record failed")
		}
		return nil, err
	}

	if err := e.records.CompleteAnalysis(ctx, recordID, result, riskFlags(result)); err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}

	log.Info().
		Str("record_id", recordID.String()).
		Str("file_type", record.FileType).
		Int("anomalies", len(result.Anomalies)).
		Str("risk_level", result.OverallRiskLevel).
		Int64("processing_time_ms", time.Since(startTime).Milliseconds()).
		Msg("Record analyzed")

	return result, nil
}

func (e *Engine) analyze(ctx context.Context, record *models.FinancialRecord) (*models.AnalysisResult, error) {
	if record.FileType == models.FileTypePDF {
		return &models.AnalysisResult{
			Summary:          pdfPlaceholderSummary,
			Anomalies:        []models.Anomaly{},
			ComplianceIssues: []models.ComplianceIssue{},
			OverallRiskLevel: models.SeverityLow,
		}, nil
	}

	data, err := e.blobs.Fetch(ctx, record.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file contents: %w", err)
	}

	table, err := extract.Extract(record.FileType, data)
	if err != nil {
		return nil, err
	}

	return RunRules(table, e.cfg), nil
}

// riskFlags summarizes the overall level and anomaly counts by severity
// for the risk_flags column
func riskFlags(result *models.AnalysisResult) models.JSONB {
	counts := map[string]int{
		models.SeverityHigh:   0,
		models.SeverityMedium: 0,
		models.SeverityLow:    0,
	}
	for _, a := range result.Anomalies {
		counts[a.Severity]++
	}

	return models.JSONB{
		"overall": result.OverallRiskLevel,
		"total":   len(result.Anomalies),
		"high":    counts[models.SeverityHigh],
		"medium":  counts[models.SeverityMedium],
		"low":     counts[models.SeverityLow],
	}
}
