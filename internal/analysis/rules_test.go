package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finaudit/audit-engine/internal/extract"
	"github.com/finaudit/audit-engine/internal/models"
)

var testConfig = Config{HighValueThreshold: 10000}

func numberCell(n float64) extract.Cell {
	return extract.Cell{Kind: extract.CellNumber, Number: n}
}

func textCell(s string) extract.Cell {
	return extract.Cell{Kind: extract.CellText, Text: s}
}

func dateCell(year int, month time.Month, day int) extract.Cell {
	return extract.Cell{Kind: extract.CellDate, Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func txnAt(row int, amount, id, date extract.Cell) extract.Transaction {
	return extract.Transaction{
		Amount: amount,
		ID:     id,
		Date:   date,
		Ref:    fmt.Sprintf("Row %d", row),
	}
}

func TestRunRulesHighValue(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(15000), textCell("T1"), extract.Cell{}),
		txnAt(3, numberCell(10000), textCell("T2"), extract.Cell{}), // at threshold, not over
		txnAt(4, textCell("n/a"), textCell("T3"), extract.Cell{}),   // non-numeric amount skips rule
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 1)

	a := result.Anomalies[0]
	assert.Equal(t, "High-Value Transaction", a.Type)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, "Row 2", a.RecordReference)
	assert.Equal(t, "Transaction amount of $15000.00 exceeds the threshold of $10000.", a.Description)
	assert.Equal(t, models.SeverityMedium, result.OverallRiskLevel)
}

func TestRunRulesConfigurableThreshold(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(600), textCell("T1"), extract.Cell{}),
	}}

	result := RunRules(table, Config{HighValueThreshold: 500})
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, "Transaction amount of $600.00 exceeds the threshold of $500.", result.Anomalies[0].Description)
}

func TestRunRulesDuplicateID(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(100), textCell("T1"), extract.Cell{}),
		txnAt(3, numberCell(200), textCell("T1"), extract.Cell{}),
		txnAt(4, numberCell(300), textCell("T1"), extract.Cell{}),
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 2)

	// Only the later occurrences are flagged, never the first.
	assert.Equal(t, "Row 3", result.Anomalies[0].RecordReference)
	assert.Equal(t, "Row 4", result.Anomalies[1].RecordReference)
	for _, a := range result.Anomalies {
		assert.Equal(t, "Duplicate Transaction", a.Type)
		assert.Equal(t, models.SeverityHigh, a.Severity)
		assert.Equal(t, "Duplicate Transaction ID #T1 found.", a.Description)
	}
	assert.Equal(t, models.SeverityHigh, result.OverallRiskLevel)
}

func TestRunRulesDuplicateIDNumericCoercion(t *testing.T) {
	// A numeric 1001 and a textual "1001" are the same ID after coercion.
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(100), numberCell(1001), extract.Cell{}),
		txnAt(3, numberCell(200), textCell("1001"), extract.Cell{}),
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, "Duplicate Transaction ID #1001 found.", result.Anomalies[0].Description)
}

func TestRunRulesMissingIDNeverDuplicates(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(100), extract.Cell{}, extract.Cell{}),
		txnAt(3, numberCell(200), extract.Cell{}, extract.Cell{}),
	}}

	result := RunRules(table, testConfig)
	assert.Empty(t, result.Anomalies)
}

func TestRunRulesWeekendActivity(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(100), textCell("T1"), dateCell(2024, time.June, 8)), // Saturday
		txnAt(3, numberCell(100), textCell("T2"), dateCell(2024, time.June, 9)), // Sunday
		txnAt(4, numberCell(100), textCell("T3"), dateCell(2024, time.June, 10)), // Monday
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 2)

	assert.Equal(t, "Weekend Activity", result.Anomalies[0].Type)
	assert.Equal(t, models.SeverityLow, result.Anomalies[0].Severity)
	assert.Equal(t, "Transaction occurred on a weekend (6/8/2024).", result.Anomalies[0].Description)
	assert.Equal(t, "Transaction occurred on a weekend (6/9/2024).", result.Anomalies[1].Description)
	assert.Equal(t, models.SeverityLow, result.OverallRiskLevel)
}

func TestRunRulesMultipleAnomaliesPerRow(t *testing.T) {
	// One row triggers high-value and weekend at once.
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(15000), textCell("T1"), dateCell(2024, time.June, 8)),
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 2)
	assert.Equal(t, "High-Value Transaction", result.Anomalies[0].Type)
	assert.Equal(t, "Weekend Activity", result.Anomalies[1].Type)
	assert.Equal(t, models.SeverityMedium, result.OverallRiskLevel)
	assert.Equal(t, "Rule-based analysis complete. Found 2 potential anomalies.", result.Summary)
}

func TestRunRulesGroupsAnomaliesByRule(t *testing.T) {
	// A weekend hit on an earlier row must still sort after a high-value
	// hit on a later row: each rule sweeps the full sequence in turn.
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(100), textCell("T1"), dateCell(2024, time.June, 8)),
		txnAt(3, numberCell(15000), textCell("T2"), extract.Cell{}),
		txnAt(4, numberCell(20000), textCell("T2"), dateCell(2024, time.June, 9)),
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 5)

	types := make([]string, 0, len(result.Anomalies))
	for _, a := range result.Anomalies {
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{
		"High-Value Transaction",
		"High-Value Transaction",
		"Duplicate Transaction",
		"Weekend Activity",
		"Weekend Activity",
	}, types)

	// Within a rule's group the row order is preserved.
	assert.Equal(t, "Row 3", result.Anomalies[0].RecordReference)
	assert.Equal(t, "Row 4", result.Anomalies[1].RecordReference)
	assert.Equal(t, "Row 4", result.Anomalies[2].RecordReference)
	assert.Equal(t, "Row 2", result.Anomalies[3].RecordReference)
	assert.Equal(t, "Row 4", result.Anomalies[4].RecordReference)
}

func TestRunRulesEmptyTable(t *testing.T) {
	result := RunRules(&extract.Table{}, testConfig)

	assert.NotNil(t, result.Anomalies)
	assert.Empty(t, result.Anomalies)
	assert.Empty(t, result.ComplianceIssues)
	assert.Equal(t, models.SeverityLow, result.OverallRiskLevel)
	assert.Equal(t, "Rule-based analysis complete. Found 0 potential anomalies.", result.Summary)
}

func TestRunRulesAllAnomaliesOpen(t *testing.T) {
	table := &extract.Table{Transactions: []extract.Transaction{
		txnAt(2, numberCell(20000), textCell("T1"), extract.Cell{}),
	}}

	result := RunRules(table, testConfig)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.FlagStatusOpen, result.Anomalies[0].Status)
}

func TestOverallRiskLevelPrecedence(t *testing.T) {
	assert.Equal(t, models.SeverityLow, overallRiskLevel(nil))
	assert.Equal(t, models.SeverityLow, overallRiskLevel([]models.Anomaly{{Severity: models.SeverityLow}}))
	assert.Equal(t, models.SeverityMedium, overallRiskLevel([]models.Anomaly{
		{Severity: models.SeverityLow}, {Severity: models.SeverityMedium},
	}))
	assert.Equal(t, models.SeverityHigh, overallRiskLevel([]models.Anomaly{
		{Severity: models.SeverityMedium}, {Severity: models.SeverityHigh}, {Severity: models.SeverityLow},
	}))
}
