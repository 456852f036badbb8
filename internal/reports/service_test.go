package reports

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finaudit/audit-engine/internal/models"
)

func completedRecord() *models.FinancialRecord {
	return &models.FinancialRecord{
		ID:       uuid.New(),
		FileName: "q2-ledger.csv",
		FileType: models.FileTypeCSV,
		Status:   models.RecordStatusCompleted,
		AnalysisResults: &models.AnalysisResult{
			Summary: "Rule-based analysis complete. Found 2 potential anomalies.",
			Anomalies: []models.Anomaly{
				{
					Type:            "Duplicate Transaction",
					Description:     "Duplicate Transaction ID #T1 found.",
					Severity:        models.SeverityHigh,
					RecordReference: "Row 3",
					Status:          models.FlagStatusOpen,
				},
				{
					Type:            "Weekend Activity",
					Description:     "Transaction occurred on a weekend (6/8/2024).",
					Severity:        models.SeverityLow,
					RecordReference: "Row 2",
					Status:          models.FlagStatusOpen,
				},
			},
			ComplianceIssues: []models.ComplianceIssue{},
			OverallRiskLevel: models.SeverityHigh,
		},
	}
}

func TestBuildReportData(t *testing.T) {
	record := completedRecord()
	data := BuildReportData(record)

	assert.Equal(t, record.ID.String(), data["record_id"])
	assert.Equal(t, "q2-ledger.csv", data["file_name"])
	assert.Equal(t,
		"Analysis of q2-ledger.csv identified 2 potential anomalies. Overall risk level: High.",
		data["executive_summary"])

	detailed, ok := data["detailed_analysis"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, record.AnalysisResults.Summary, detailed["summary"])
	anomalies, ok := detailed["anomalies"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "Duplicate Transaction", anomalies[0]["type"])
	assert.Equal(t, "Row 3", anomalies[0]["record_reference"])

	risk, ok := data["risk_assessment"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, risk["overall_risk_level"])
	assert.Equal(t, 1, risk["high_severity"])
	assert.Equal(t, 0, risk["medium_severity"])
	assert.Equal(t, 1, risk["low_severity"])
}

func TestBuildReportDataDeterministic(t *testing.T) {
	record := completedRecord()
	first := BuildReportData(record)
	second := BuildReportData(record)
	assert.Equal(t, first, second)
}

func TestBuildReportDataNoAnomalies(t *testing.T) {
	record := completedRecord()
	record.AnalysisResults.Anomalies = []models.Anomaly{}
	record.AnalysisResults.OverallRiskLevel = models.SeverityLow

	data := BuildReportData(record)
	assert.Equal(t,
		"Analysis of q2-ledger.csv identified 0 potential anomalies. Overall risk level: Low.",
		data["executive_summary"])
}

func TestRecommendationsByRiskLevel(t *testing.T) {
	high := recommendations(&models.AnalysisResult{OverallRiskLevel: models.SeverityHigh})
	medium := recommendations(&models.AnalysisResult{OverallRiskLevel: models.SeverityMedium})
	low := recommendations(&models.AnalysisResult{OverallRiskLevel: models.SeverityLow})

	assert.Contains(t, high, "Immediate review")
	assert.Contains(t, medium, "high-value transactions")
	assert.Contains(t, low, "No significant irregularities")
	assert.NotEqual(t, high, medium)
	assert.NotEqual(t, medium, low)
}
